// Package api exposes the read-only status surface for the two bots.
// All state mutation happens through the engine and verifier loops;
// the API only reads the shared store and the snapshot cache.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/coinpulse/signalengine/internal/db"
	"github.com/coinpulse/signalengine/internal/market"
	"github.com/coinpulse/signalengine/internal/metrics"
)

// Store is the read-only slice of the shared store the API serves.
type Store interface {
	Ping(ctx context.Context) error
	GetDailyState(ctx context.Context, date string) (*db.DailyState, error)
	GetPendingSignals(ctx context.Context) ([]*db.Signal, error)
	GetRecentResults(ctx context.Context, limit int) ([]*db.Signal, error)
	GetLastHeartbeat(ctx context.Context, botName string) (*db.Heartbeat, error)
	GetLessons(ctx context.Context, limit int) ([]*db.Lesson, error)
}

// Server represents the REST API server
type Server struct {
	router *gin.Engine
	store  Store
	cache  *market.RedisCache
	symbol string
	addr   string
	server *http.Server
	now    func() time.Time
}

// Config contains server configuration
type Config struct {
	Host   string
	Port   int
	Symbol string
	Store  Store
	Cache  *market.RedisCache
}

// NewServer creates a new API server
func NewServer(config Config) *Server {
	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	symbol := config.Symbol
	if symbol == "" {
		symbol = "BTCUSDT"
	}

	server := &Server{
		router: router,
		store:  config.Store,
		cache:  config.Cache,
		symbol: symbol,
		addr:   fmt.Sprintf("%s:%d", config.Host, config.Port),
		now:    time.Now,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log and instrument request
		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		metrics.RecordAPIRequest(method, path, strconv.Itoa(statusCode),
			float64(latency.Milliseconds()))

		logEvent := log.Info().
			Str("method", method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", clientIP)

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}
