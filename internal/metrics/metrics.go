package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
// These ensure metrics don't have unbounded label values which can cause memory issues.
const (
	// Exchange API error categories (bounded set)
	ExchangeErrorTimeout     = "timeout"
	ExchangeErrorRateLimit   = "rate_limit"
	ExchangeErrorAuth        = "authentication"
	ExchangeErrorNetwork     = "network"
	ExchangeErrorInvalidReq  = "invalid_request"
	ExchangeErrorServerError = "server_error"
	ExchangeErrorOther       = "other"
)

// NormalizeExchangeError maps arbitrary error messages to bounded set
func NormalizeExchangeError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return ExchangeErrorTimeout
	case strings.Contains(errStr, "rate") || strings.Contains(errStr, "429"):
		return ExchangeErrorRateLimit
	case strings.Contains(errStr, "auth") || strings.Contains(errStr, "401") || strings.Contains(errStr, "403"):
		return ExchangeErrorAuth
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection"):
		return ExchangeErrorNetwork
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "invalid"):
		return ExchangeErrorInvalidReq
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503"):
		return ExchangeErrorServerError
	default:
		return ExchangeErrorOther
	}
}

// Signal Pipeline Metrics
var (
	// Signals persisted, by strategy and direction
	SignalsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalengine_signals_generated_total",
		Help: "Total number of signals generated by strategy and direction",
	}, []string{"strategy", "direction"})

	// Candidate signals rejected at a gate
	GateFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalengine_gate_failures_total",
		Help: "Total number of candidate signals rejected by gate",
	}, []string{"gate"})

	// Gate pipeline overall score of the last evaluation
	GateOverallScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalengine_gate_overall_score",
		Help: "Overall gate score of the most recent evaluation (0.0 to 1.0)",
	})

	// Engine evaluation cycle duration
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signalengine_tick_duration_ms",
		Help:    "Engine evaluation cycle duration in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000},
	})

	// Feature vector build duration
	FeatureBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signalengine_feature_build_duration_ms",
		Help:    "Feature vector assembly duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000},
	})

	// AI confirmation confidence of the last prediction
	AIConfidence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalengine_ai_confidence",
		Help: "AI confirmation confidence of the most recent prediction (0.0 to 1.0)",
	})

	// Regime transitions
	RegimeChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalengine_regime_changes_total",
		Help: "Total number of market regime transitions by new regime",
	}, []string{"regime"})

	// Current regime (1 for the active regime, 0 for the rest)
	CurrentRegime = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "signalengine_current_regime",
		Help: "Current market regime (1 = active, 0 = inactive)",
	}, []string{"regime"})
)

// Verifier Metrics
var (
	// Resolved signals by outcome
	SignalResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalengine_signal_resolutions_total",
		Help: "Total number of resolved signals by outcome",
	}, []string{"status"})

	// Pending signals being tracked
	PendingSignals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalengine_pending_signals",
		Help: "Number of signals currently pending resolution",
	})

	// Realized PnL split by sign
	WinningTradesValue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalengine_winning_trades_value",
		Help: "Total value of winning trades in USD",
	})

	LosingTradesValue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalengine_losing_trades_value",
		Help: "Total value (absolute) of losing trades in USD",
	})

	// Daily budget state
	DailyPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalengine_daily_pnl",
		Help: "Realized PnL for the current UTC day in USD",
	})

	DailyTradeCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalengine_daily_trade_count",
		Help: "Trades opened in the current UTC day",
	})

	// Win rate over resolved signals (0.0 to 1.0)
	WinRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalengine_win_rate",
		Help: "Win rate over resolved signals as a ratio (0.0 to 1.0)",
	})

	// Total realized PnL
	TotalPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalengine_total_pnl",
		Help: "Total realized profit and loss in USD",
	})

	// Trade IQ of the last scored trade
	LastTradeIQ = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalengine_last_trade_iq",
		Help: "Trade IQ score of the most recently resolved trade (0 to 100)",
	})

	// Average trade IQ over the trailing window
	AvgTradeIQ = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalengine_avg_trade_iq",
		Help: "Average trade IQ over scored trades (0 to 100)",
	})

	// Peer bot heartbeat age
	HeartbeatAge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "signalengine_heartbeat_age_seconds",
		Help: "Age of the last heartbeat by bot",
	}, []string{"bot"})
)

// System Health Metrics
var (
	// Database connections
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalengine_database_connections_active",
		Help: "Number of active database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalengine_database_connections_idle",
		Help: "Number of idle database connections",
	})

	// Redis cache hit rate
	RedisCacheHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalengine_redis_cache_hit_rate",
		Help: "Redis cache hit rate as a ratio (0.0 to 1.0)",
	})

	// Redis operations
	RedisOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalengine_redis_operations_total",
		Help: "Total number of Redis operations by type",
	}, []string{"operation"})

	// API request duration
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signalengine_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"method", "path", "status_code"})

	// HTTP requests
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalengine_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status_code"})

	// Errors
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalengine_errors_total",
		Help: "Total number of errors by type",
	}, []string{"type", "component"})

	// Database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signalengine_database_query_duration_ms",
		Help:    "Database query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"query_type"})

	// Telegram deliveries
	TelegramMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalengine_telegram_messages_total",
		Help: "Total number of Telegram messages by delivery status",
	}, []string{"status"})
)

// Exchange Metrics
var (
	// Exchange API latency
	ExchangeAPILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signalengine_exchange_api_latency_ms",
		Help:    "Exchange API latency in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"exchange", "endpoint"})

	// Exchange API errors
	ExchangeAPIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalengine_exchange_api_errors_total",
		Help: "Total exchange API errors",
	}, []string{"exchange", "error_type"})

	// Feature provider degradations to synthetic data
	ProviderDegradations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalengine_provider_degradations_total",
		Help: "Total feature provider fallbacks to synthetic data",
	}, []string{"provider"})
)

// Helper functions to update metrics

// RecordSignalGenerated records a persisted signal
func RecordSignalGenerated(strategy, direction string) {
	SignalsGenerated.WithLabelValues(strategy, direction).Inc()
}

// RecordGateFailure records a candidate rejected at the named gate
func RecordGateFailure(gate string) {
	GateFailures.WithLabelValues(gate).Inc()
}

// RecordTick records an engine evaluation cycle
func RecordTick(durationMs float64) {
	TickDuration.Observe(durationMs)
}

// RecordFeatureBuild records feature vector assembly duration
func RecordFeatureBuild(durationMs float64) {
	FeatureBuildDuration.Observe(durationMs)
}

// RecordRegimeChange records a regime transition and flips the
// current-regime gauge set
func RecordRegimeChange(oldRegime, newRegime string) {
	RegimeChanges.WithLabelValues(newRegime).Inc()
	if oldRegime != "" {
		CurrentRegime.WithLabelValues(oldRegime).Set(0)
	}
	CurrentRegime.WithLabelValues(newRegime).Set(1)
}

// RecordResolution records a resolved signal and its realized PnL
func RecordResolution(status string, resultPnL float64) {
	SignalResolutions.WithLabelValues(status).Inc()
	if resultPnL > 0 {
		WinningTradesValue.Add(resultPnL)
	} else {
		LosingTradesValue.Add(-resultPnL)
	}
}

// UpdateDailyState mirrors the shared daily budget row
func UpdateDailyState(pnl float64, tradeCount int) {
	DailyPnL.Set(pnl)
	DailyTradeCount.Set(float64(tradeCount))
}

// RecordTradeIQ records the IQ score of a resolved trade
func RecordTradeIQ(score float64) {
	LastTradeIQ.Set(score)
}

// UpdateHeartbeatAge updates the heartbeat age for a bot
func UpdateHeartbeatAge(botName string, ageSeconds float64) {
	HeartbeatAge.WithLabelValues(botName).Set(ageSeconds)
}

// UpdateDatabaseConnections updates database connection metrics
func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}

// RecordAPIRequest records an API request with duration
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	Errors.WithLabelValues(errorType, component).Inc()
}

// RecordDatabaseQuery records a database query
func RecordDatabaseQuery(queryType string, durationMs float64) {
	DatabaseQueryDuration.WithLabelValues(queryType).Observe(durationMs)
}

// RecordRedisOperation records a Redis operation
func RecordRedisOperation(operation string) {
	RedisOperations.WithLabelValues(operation).Inc()
}

// RecordTelegramMessage records a Telegram delivery attempt
func RecordTelegramMessage(success bool) {
	status := "sent"
	if !success {
		status = "failed"
	}
	TelegramMessages.WithLabelValues(status).Inc()
}

// RecordExchangeAPICall records an exchange API call with normalized error category
func RecordExchangeAPICall(exchange, endpoint string, durationMs float64, err error) {
	ExchangeAPILatency.WithLabelValues(exchange, endpoint).Observe(durationMs)
	if err != nil {
		errorCategory := NormalizeExchangeError(err)
		ExchangeAPIErrors.WithLabelValues(exchange, errorCategory).Inc()
	}
}

// RecordProviderDegradation records a feature provider fallback
func RecordProviderDegradation(provider string) {
	ProviderDegradations.WithLabelValues(provider).Inc()
}
