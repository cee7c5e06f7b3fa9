// Package http provides the operations HTTP server: liveness, readiness and the
// Prometheus scrape endpoint. The vault itself has no HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/cellvault/internal/metrics"
)

// readinessTimeout bounds one dependency check.
const readinessTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB and by the badger adapter in internal/database.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server represents the operations HTTP server.
type Server struct {
	db              Pinger
	metricsProvider *metrics.Provider
	namespace       string
	router          *gin.Engine
	server          *http.Server
	logger          *slog.Logger
}

// NewServer creates a new operations server. metricsProvider may be nil, in which
// case /metrics is not exposed.
func NewServer(
	db Pinger,
	host string,
	port int,
	logger *slog.Logger,
	metricsProvider *metrics.Provider,
	namespace string,
) *Server {
	return &Server{
		db:              db,
		metricsProvider: metricsProvider,
		namespace:       namespace,
		logger:          logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter registers the middleware chain and the operations endpoints.
func (s *Server) SetupRouter() {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if s.metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(s.metricsProvider.MeterProvider(), s.namespace))
		router.GET("/metrics", gin.WrapH(s.metricsProvider.Handler()))
	}

	router.GET("/healthz", s.healthHandler)
	router.GET("/readyz", s.readinessHandler)

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	if s.router == nil {
		s.SetupRouter()
	}
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		s.SetupRouter()
	}
	s.server.Handler = s.router

	s.logger.Info("starting ops server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start ops server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down ops server")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	database := "ok"
	if s.db == nil {
		database = "error"
	} else if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("readiness check failed", slog.String("component", "database"), slog.Any("error", err))
		database = "error"
	}

	if database != "ok" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"database": database},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": gin.H{"database": database},
	})
}
