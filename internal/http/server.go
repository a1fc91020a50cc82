// Package http exposes the chat service over a small REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hmochat/internal/chat"
	"github.com/fyrsmithlabs/hmochat/internal/logging"
	"github.com/fyrsmithlabs/hmochat/internal/orchestrator"
	"github.com/fyrsmithlabs/hmochat/internal/vectorstore"
)

// RetryMessage is returned to clients when a turn could not complete.
const RetryMessage = "Sorry, something went wrong while processing your message. Please try again."

// ChatHandler handles one chat turn.
type ChatHandler interface {
	Handle(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// StatsProvider reports knowledge index health.
type StatsProvider interface {
	Stats(ctx context.Context) (vectorstore.Stats, error)
}

// Server provides HTTP endpoints for hmochat.
type Server struct {
	echo     *echo.Echo
	chat     ChatHandler
	stats    StatsProvider
	gatherer prometheus.Gatherer
	logger   *logging.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Metrics records OpenTelemetry HTTP metrics when set.
	Metrics *HTTPMetrics
}

// NewServer creates a new HTTP server.
func NewServer(handler ChatHandler, stats StatsProvider, logger *logging.Logger, cfg *Config) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("chat handler cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8000,
		}
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		chat:     handler,
		stats:    stats,
		gatherer: gatherer,
		logger:   logger.Named("http"),
		config:   cfg,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestContext)
	e.Use(s.requestLogger)
	if cfg.Metrics != nil {
		e.Use(cfg.Metrics.MetricsMiddleware())
	}

	s.registerRoutes()

	return s, nil
}

// requestContext carries the request id into the handler context so every
// log line of the turn is correlated.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Response().Header().Get(echo.HeaderXRequestID)
		if id != "" {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		}
		return next(c)
	}
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info(c.Request().Context(), "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleHealth)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/welcome", s.handleWelcome)
	s.echo.POST("/chat", s.handleChat)
	s.echo.GET("/vector-store/stats", s.handleStats)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleWelcome(c echo.Context) error {
	return c.JSON(http.StatusOK, WelcomeResponse{Message: chat.WelcomeMessage})
}

func (s *Server) handleChat(c echo.Context) error {
	ctx := c.Request().Context()

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid chat request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	resp, err := s.chat.Handle(ctx, chat.Request{
		Message: req.Message,
		Profile: req.UserProfile,
		History: req.history(),
	})
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) || errors.Is(err, chat.ErrInvalidHistory) ||
			errors.Is(err, chat.ErrInvalidProfile) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		}
		var abort *orchestrator.AbortError
		if errors.As(err, &abort) {
			s.logger.Error(ctx, "chat run aborted",
				zap.String("reason", abort.Reason()),
				zap.Int("steps", abort.Steps))
		} else {
			s.logger.Error(ctx, "chat failed", zap.Error(err))
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: RetryMessage})
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Message:              resp.Message,
		UserProfile:          resp.Profile,
		Phase:                string(resp.Phase),
		RequiresConfirmation: resp.RequiresConfirmation,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	if s.stats == nil {
		return c.JSON(http.StatusOK, StatsResponse{Status: "not_loaded"})
	}

	ctx := c.Request().Context()
	st, err := s.stats.Stats(ctx)
	if err != nil {
		s.logger.Error(ctx, "vector store stats failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "vector store unavailable"})
	}

	status := "not_loaded"
	if st.Loaded {
		status = "loaded"
	}
	return c.JSON(http.StatusOK, StatsResponse{
		Status:         status,
		TotalDocuments: st.TotalDocuments,
		Dimension:      st.Dimension,
		IndexType:      st.IndexType,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
