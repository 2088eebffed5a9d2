package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ultracontext/internal/compress"
	"github.com/fyrsmithlabs/ultracontext/internal/logging"
	"github.com/fyrsmithlabs/ultracontext/internal/store"
	"github.com/fyrsmithlabs/ultracontext/internal/summarize"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RateLimit is requests per second per client ip. Zero or negative
	// disables limiting.
	RateLimit float64
	RateBurst int
	// MaxBodyBytes caps request bodies. Zero selects 10MB.
	MaxBodyBytes int64
}

func (c Config) addr() string {
	if c.Addr == "" {
		return ":8420"
	}
	return c.Addr
}

func (c Config) maxBodyBytes() int64 {
	if c.MaxBodyBytes <= 0 {
		return 10 << 20
	}
	return c.MaxBodyBytes
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithSummarizer supplies the summarizer attached to compress requests
// that ask for LLM-backed summaries.
func WithSummarizer(fn summarize.Summarizer) Option {
	return func(s *Server) { s.summarizer = fn }
}

// WithVersion sets the build version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithEngineDefaults sets the base engine options that request bodies
// override.
func WithEngineDefaults(opts compress.Options) Option {
	return func(s *Server) { s.defaults = opts }
}

// Server provides the HTTP endpoints of the daemon.
type Server struct {
	echo   *echo.Echo
	store  *store.Store
	engine *compress.Service
	logger *logging.Logger
	cfg    Config

	defaults   compress.Options
	summarizer summarize.Summarizer
	version    string
}

// NewServer creates the API server. The store and logger are required;
// a nil engine gets a default compression service for the stateless
// endpoint.
func NewServer(cfg Config, st *store.Store, engine *compress.Service, logger *logging.Logger, opts ...Option) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if engine == nil {
		var err error
		engine, err = compress.NewService()
		if err != nil {
			return nil, fmt.Errorf("creating compression service: %w", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		store:  st,
		engine: engine,
		logger: logger,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger())
	e.Use(s.bodyLimit())
	if cfg.RateLimit > 0 {
		e.Use(newClientLimiter(cfg.RateLimit, cfg.RateBurst).Middleware())
	}
	e.Use(newMetrics(logger).Middleware())

	s.registerRoutes()
	return s, nil
}

// requestLogger threads the request id into the context so handler logs
// carry it, and logs one line per request.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), rid)
			c.SetRequest(c.Request().WithContext(ctx))

			start := time.Now()
			err := next(c)

			s.logger.InfoContext(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	}
}

func (s *Server) bodyLimit() echo.MiddlewareFunc {
	limit := s.cfg.maxBodyBytes()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, limit)
			return next(c)
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/v1")
	v1.POST("/compress", s.handleCompressStateless)
	v1.POST("/contexts", s.handleCreateContext)
	v1.GET("/contexts", s.handleListContexts)
	v1.GET("/contexts/:id", s.handleGetContext)
	v1.DELETE("/contexts/:id", s.handleDeleteContext)
	v1.POST("/contexts/:id/messages", s.handleAppendMessages)
	v1.PATCH("/contexts/:id/messages/:mid", s.handleUpdateMessage)
	v1.POST("/contexts/:id/compress", s.handleCompressContext)
	v1.POST("/contexts/:id/expand", s.handleExpandContext)
	v1.GET("/contexts/:id/search", s.handleSearchContext)
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.echo.Server.ReadTimeout = s.cfg.ReadTimeout
	s.echo.Server.WriteTimeout = s.cfg.WriteTimeout

	addr := s.cfg.addr()
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// httpError maps store errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrVersionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
