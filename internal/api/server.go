package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/egrn-tools/internal/api/handlers"
	"github.com/nexconsult/egrn-tools/internal/api/middleware"
	"github.com/nexconsult/egrn-tools/internal/services"
	"github.com/sirupsen/logrus"
)

// Server exposes the progress of a submission run over HTTP
type Server struct {
	Router     *gin.Engine
	httpServer *http.Server
	status     handlers.StatusProvider
	ledger     services.LedgerInterface
	logger     *logrus.Logger
}

// NewServer creates a new status server listening on addr
func NewServer(addr string, status handlers.StatusProvider, ledger services.LedgerInterface, logger *logrus.Logger) *Server {
	server := &Server{
		status: status,
		ledger: ledger,
		logger: logger,
	}

	server.setupRouter()
	server.httpServer = &http.Server{
		Addr:         addr,
		Handler:      server.Router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server
}

// setupRouter configures the router with all routes and middleware
func (s *Server) setupRouter() {
	s.Router = gin.New()

	// Global middleware
	s.Router.Use(middleware.RequestID())
	s.Router.Use(middleware.Logger(s.logger))
	s.Router.Use(middleware.Recovery(s.logger))

	s.Router.GET("/health", handlers.NewHealthHandler(s.ledger, s.logger).GetHealth)

	v1 := s.Router.Group("/api/v1")
	{
		statusHandler := handlers.NewStatusHandler(s.status, s.ledger, s.logger)
		v1.GET("/status", statusHandler.GetStatus)
		v1.GET("/submissions/:objectId", statusHandler.GetSubmission)
	}

	// 404 handler
	s.Router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Not Found",
			"message":   "The requested resource was not found",
			"timestamp": time.Now(),
			"path":      c.Request.URL.Path,
		})
	})
}

// Start serves in the background until Shutdown
func (s *Server) Start() {
	go func() {
		s.logger.WithField("addr", s.httpServer.Addr).Info("Status server starting...")

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("error", err.Error()).Error("Status server failed")
		}
	}()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down status server...")
	return s.httpServer.Shutdown(ctx)
}
