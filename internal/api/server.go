// Package api exposes the alert admin HTTP surface: acknowledging alerts
// and listing open high-priority ones.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"SocialMonitor/internal/domain"
)

// AlertStore is the slice of the repository the API needs.
type AlertStore interface {
	AcknowledgeAlert(ctx context.Context, alertID int64, by string) (domain.Alert, error)
	OpenHighPriorityAlerts(ctx context.Context, since time.Time) ([]domain.Alert, error)
}

// Server serves the admin endpoints.
type Server struct {
	store  AlertStore
	logger *slog.Logger
	http   *http.Server
}

// NewServer wires the alert store into a gin router.
func NewServer(addr string, store AlertStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{store: store, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.registerRoutes(router)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", s.handleHealth)

	v1 := router.Group("/api/v1")
	v1.POST("/alerts/:id/acknowledge", s.handleAcknowledge)
	v1.GET("/alerts/open", s.handleOpenAlerts)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks serving requests until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
