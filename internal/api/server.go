// Package api exposes the classifier over HTTP: a classify route, a model
// description route and a health check.
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/cardioml/ecgnet/internal/logger"
	"github.com/cardioml/ecgnet/internal/model"
)

type Server struct {
	model   *model.Model
	log     logger.Logger
	limiter *rate.Limiter
}

// NewServer wraps a constructed model. requestsPerSecond bounds the classify
// route; zero or negative disables the limiter.
func NewServer(m *model.Model, log logger.Logger, requestsPerSecond float64) *Server {
	s := &Server{
		model: m,
		log:   log,
	}
	if requestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond)+1)
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/classify", s.handleClassify, s.rateLimit)
	e.GET("/v1/model", s.handleModelInfo)
	e.GET("/healthz", s.handleHealth)
}

// rateLimit rejects classify requests beyond the configured rate. Model
// inference is CPU-bound, so shedding load early beats queueing it.
func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			return writeError(c, http.StatusTooManyRequests, "rate_limited", "request rate limit exceeded")
		}
		return next(c)
	}
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}

// ModelInfoResponse describes the loaded architecture.
type ModelInfoResponse struct {
	InputChannels int          `json:"input_channels"`
	NumClasses    int          `json:"num_classes"`
	AttentionType string       `json:"attention_type"`
	GRUUnits      int          `json:"gru_units"`
	Heads         int          `json:"heads"`
	ParamCount    int          `json:"param_count"`
	Config        model.Config `json:"config"`
}

func (s *Server) handleModelInfo(c *echo.Context) error {
	cfg := s.model.Config()
	return c.JSON(http.StatusOK, ModelInfoResponse{
		InputChannels: cfg.InputChannels,
		NumClasses:    cfg.NumClasses,
		AttentionType: cfg.AttentionType,
		GRUUnits:      cfg.GRUUnits,
		Heads:         cfg.Heads,
		ParamCount:    s.model.ParamCount(),
		Config:        cfg,
	})
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": map[string]string{
			"type":    errType,
			"message": msg,
		},
	})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
