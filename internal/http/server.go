// Package http provides the HTTP API for replyd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/replyd/internal/bandit"
	"github.com/fyrsmithlabs/replyd/internal/generation"
	"github.com/fyrsmithlabs/replyd/internal/interaction"
	"github.com/fyrsmithlabs/replyd/internal/orchestrator"
)

// TurnService is the decision loop the server fronts.
type TurnService interface {
	RunTurn(ctx context.Context, gc *generation.Context, sessionID, turnID string) (*orchestrator.TurnResult, error)
	ApplyFeedback(ctx context.Context, sessionID, turnID string, chosenIndex int, reward float64) error
	Catalog() generation.StylesCatalog
	PendingCount() int
}

// Server provides HTTP endpoints for replyd.
type Server struct {
	echo    *echo.Echo
	service TurnService
	metrics *Metrics
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// DefaultCandidates is used when a turn request omits candidate_count.
	DefaultCandidates int
}

// NewServer creates a new HTTP server. Metrics may be nil to disable
// instrumentation and the /metrics endpoint.
func NewServer(service TurnService, metrics *Metrics, logger *zap.Logger, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("turn service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 8710,
		}
	}
	if cfg.DefaultCandidates < 1 {
		cfg.DefaultCandidates = 4
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})
	if metrics != nil {
		e.Use(metrics.Middleware())
	}

	s := &Server{
		echo:    e,
		service: service,
		metrics: metrics,
		logger:  logger,
		config:  cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check
	s.echo.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.POST("/turn", s.handleTurn)
	v1.POST("/feedback", s.handleFeedback)
	v1.GET("/styles", s.handleStyles)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Pending: s.service.PendingCount(),
	})
}

// handleTurn runs one decision round and returns the selected reply.
func (s *Server) handleTurn(c echo.Context) error {
	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid turn request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages field is required")
	}
	if req.CandidateCount < 1 {
		req.CandidateCount = s.config.DefaultCandidates
	}

	gc := &generation.Context{
		UserProfile:    req.UserProfile,
		Goal:           req.Goal,
		Constraints:    req.Constraints,
		StylesAllowed:  req.StylesAllowed,
		CandidateCount: req.CandidateCount,
	}
	for _, m := range req.Messages {
		gc.Messages = append(gc.Messages, generation.Message{Role: m.Role, Content: m.Content})
	}

	result, err := s.service.RunTurn(c.Request().Context(), gc, req.SessionID, req.TurnID)
	if err != nil {
		s.logger.Error("turn failed", zap.Error(err))
		return s.mapError(err)
	}

	chosen := result.ChosenCandidate()
	if s.metrics != nil {
		s.metrics.observeTurn(chosen.Style, result.Decision.Propensity())
	}

	resp := TurnResponse{
		SessionID:    result.SessionID,
		TurnID:       result.TurnID,
		ContextHash:  result.ContextHash,
		Propensity:   result.Decision.Propensity(),
		Propensities: result.Decision.Propensities,
		Reply: CandidateView{
			Index: result.Decision.ChosenIndex,
			Text:  chosen.Text,
			Style: chosen.Style,
		},
	}
	for i, cand := range result.Candidates {
		resp.Candidates = append(resp.Candidates, CandidateView{
			Index: i,
			Text:  cand.Text,
			Style: cand.Style,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// handleFeedback applies a reward to a pending turn.
func (s *Server) handleFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid feedback request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.SessionID == "" || req.TurnID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id and turn_id fields are required")
	}

	err := s.service.ApplyFeedback(c.Request().Context(), req.SessionID, req.TurnID, req.ChosenIndex, req.Reward)
	if err != nil {
		if s.metrics != nil {
			s.metrics.observeFeedback("rejected", req.Reward)
		}
		return s.mapError(err)
	}

	if s.metrics != nil {
		s.metrics.observeFeedback("applied", req.Reward)
	}
	return c.JSON(http.StatusOK, FeedbackResponse{Status: "applied"})
}

// handleStyles lists the reply styles known to the generator.
func (s *Server) handleStyles(c echo.Context) error {
	catalog := s.service.Catalog()
	resp := StylesResponse{Styles: make([]StyleView, 0, len(catalog))}
	for _, name := range catalog.Names() {
		traits := catalog[name]
		resp.Styles = append(resp.Styles, StyleView{
			Name:        name,
			Initiative:  traits.Initiative,
			Risk:        traits.Risk,
			Description: traits.Description,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// mapError translates domain errors to HTTP status codes.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, interaction.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "no pending turn for session_id and turn_id")
	case errors.Is(err, bandit.ErrRewardOutOfRange),
		errors.Is(err, bandit.ErrIndexOutOfRange),
		errors.Is(err, bandit.ErrInvalidFeatures):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Echo exposes the underlying router for tests and extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
