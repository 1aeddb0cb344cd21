package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/coinpulse/signalengine/internal/db"
)

var startTime = time.Now()

// Root handler
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "Signal Engine API",
		"version": "1.0.0",
		"status":  "running",
		"time":    s.now().UTC(),
	})
}

// handleGetStatus returns system status: store health, both bots'
// heartbeats, and process stats.
func (s *Server) handleGetStatus(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	ctx := c.Request.Context()

	// Check database connection
	dbStatus := "healthy"
	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			dbStatus = "unhealthy"
			log.Warn().Err(err).Msg("Database health check failed")
		}
	} else {
		dbStatus = "not_configured"
	}

	// Determine overall system status
	systemStatus := "healthy"
	if dbStatus != "healthy" {
		systemStatus = "degraded"
	}

	bots := gin.H{}
	if s.store != nil {
		bots[db.BotNameEngine] = s.heartbeatSummary(c, db.BotNameEngine)
		bots[db.BotNameVerifier] = s.heartbeatSummary(c, db.BotNameVerifier)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    systemStatus,
		"timestamp": s.now().UTC(),
		"uptime":    time.Since(startTime).Seconds(),
		"version":   "1.0.0",
		"components": gin.H{
			"database": gin.H{
				"status": dbStatus,
			},
			"cache": gin.H{
				"status": s.cacheStatus(c),
			},
		},
		"bots": bots,
		"system": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"memory": gin.H{
				"alloc_mb":       toMB(memStats.Alloc),
				"total_alloc_mb": toMB(memStats.TotalAlloc),
				"sys_mb":         toMB(memStats.Sys),
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		},
	})
}

func (s *Server) heartbeatSummary(c *gin.Context, botName string) gin.H {
	hb, err := s.store.GetLastHeartbeat(c.Request.Context(), botName)
	if err != nil {
		return gin.H{"status": "error"}
	}
	if hb == nil {
		return gin.H{"status": "never_seen"}
	}

	summary := gin.H{
		"status":      hb.Status,
		"last_seen":   hb.Timestamp.UTC(),
		"minutes_ago": s.now().Sub(hb.Timestamp).Minutes(),
	}
	if hb.CurrentRegime != nil {
		summary["current_regime"] = *hb.CurrentRegime
	}
	if hb.DailyPnL != nil {
		summary["daily_pnl"] = *hb.DailyPnL
	}
	return summary
}

func (s *Server) cacheStatus(c *gin.Context) string {
	if s.cache == nil {
		return "not_configured"
	}
	if err := s.cache.Health(c.Request.Context()); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

// handleGetRegime returns the engine's latest market snapshot. The
// snapshot cache is authoritative; the engine heartbeat is the
// fallback when Redis is not wired.
func (s *Server) handleGetRegime(c *gin.Context) {
	if snap, ok := s.cache.GetSnapshot(c.Request.Context(), s.symbol); ok {
		c.JSON(http.StatusOK, gin.H{
			"symbol":    snap.Symbol,
			"regime":    snap.Regime,
			"price":     snap.Price,
			"features":  snap.Features,
			"timestamp": snap.Timestamp,
			"source":    "snapshot_cache",
		})
		return
	}

	hb, err := s.store.GetLastHeartbeat(c.Request.Context(), db.BotNameEngine)
	if err != nil || hb == nil || hb.CurrentRegime == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no regime data available"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":    s.symbol,
		"regime":    *hb.CurrentRegime,
		"timestamp": hb.Timestamp.UTC(),
		"source":    "heartbeat",
	})
}

// handleGetDaily returns the current UTC day's budget state.
func (s *Server) handleGetDaily(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = s.now().UTC().Format("2006-01-02")
	}

	state, err := s.store.GetDailyState(c.Request.Context(), date)
	if err != nil {
		log.Error().Err(err).Str("date", date).Msg("Failed to get daily state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load daily state"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":               state.Date,
		"status":             state.Status,
		"pnl":                state.PnL,
		"trade_count":        state.TradeCount,
		"wins":               state.Wins,
		"losses":             state.Losses,
		"consecutive_losses": state.ConsecutiveLosses,
		"has_position":       state.HasPosition,
		"target_hit_at":      state.TargetHitAt,
		"stop_hit_at":        state.StopHitAt,
	})
}

// handleGetRecentSignals returns the most recently resolved signals.
func (s *Server) handleGetRecentSignals(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 20, 100)

	signals, err := s.store.GetRecentResults(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get recent signals")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load signals"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(signals),
		"signals": signalViews(signals),
	})
}

// handleGetPendingSignals returns unresolved signals.
func (s *Server) handleGetPendingSignals(c *gin.Context) {
	signals, err := s.store.GetPendingSignals(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to get pending signals")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load signals"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(signals),
		"signals": signalViews(signals),
	})
}

// handleGetLessons returns the most recent learning lessons.
func (s *Server) handleGetLessons(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 20, 100)

	lessons, err := s.store.GetLessons(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get lessons")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load lessons"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(lessons),
		"lessons": lessons,
	})
}

// handleHealthz returns a simple health check (for load balancers)
func (s *Server) handleHealthz(c *gin.Context) {
	if s.store != nil {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unavailable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   s.now().UTC(),
	})
}

// signalView is the wire shape for a signal row.
type signalView struct {
	SignalID     string          `json:"signal_id"`
	CreatedAt    time.Time       `json:"created_at"`
	Direction    db.Direction    `json:"direction"`
	Strategy     string          `json:"strategy"`
	EntryPrice   float64         `json:"entry_price"`
	StopLoss     float64         `json:"stop_loss"`
	TakeProfit   float64         `json:"take_profit"`
	Confidence   float64         `json:"confidence"`
	SetupQuality int             `json:"setup_quality"`
	Regime       string          `json:"regime"`
	Status       db.SignalStatus `json:"status"`
	ResultPnL    *float64        `json:"result_pnl,omitempty"`
	ResultReason *string         `json:"result_reason,omitempty"`
	TradeIQ      *int            `json:"trade_iq,omitempty"`
}

func signalViews(signals []*db.Signal) []signalView {
	views := make([]signalView, 0, len(signals))
	for _, sig := range signals {
		views = append(views, signalView{
			SignalID:     sig.SignalID,
			CreatedAt:    sig.CreatedAt,
			Direction:    sig.Direction,
			Strategy:     sig.Strategy,
			EntryPrice:   sig.EntryPrice,
			StopLoss:     sig.StopLoss,
			TakeProfit:   sig.TakeProfit,
			Confidence:   sig.Confidence,
			SetupQuality: sig.SetupQuality,
			Regime:       sig.Regime,
			Status:       sig.Status,
			ResultPnL:    sig.ResultPnL,
			ResultReason: sig.ResultReason,
			TradeIQ:      sig.TradeIQ,
		})
	}
	return views
}

func parseLimit(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func toMB(bytes uint64) float64 {
	return float64(bytes) / 1024 / 1024
}
