// Package api exposes the query pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	corpuserrors "github.com/corpusqa/corpusqa/internal/errors"
	"github.com/corpusqa/corpusqa/internal/search"
	"github.com/corpusqa/corpusqa/internal/telemetry"
)

// QueryService is the pipeline surface the API needs. *search.Engine
// satisfies it.
type QueryService interface {
	Search(ctx context.Context, query string, opts search.Options) (*search.SearchResult, error)
	Ask(ctx context.Context, question string, opts search.Options) (*search.Answer, error)
}

// Config configures the HTTP server.
type Config struct {
	Host string
	Port int
	// RequestTimeout bounds a single request end to end.
	RequestTimeout time.Duration
}

// Server serves the query API.
type Server struct {
	service QueryService
	metrics *telemetry.QueryMetrics
	config  Config
	http    *http.Server
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithMetricsEndpoint exposes the telemetry snapshot on /api/v1/metrics.
func WithMetricsEndpoint(m *telemetry.QueryMetrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates the API server.
func NewServer(service QueryService, cfg Config, opts ...ServerOption) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("query service is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}

	s := &Server{
		service: service,
		config:  cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Router builds the gin handler tree.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(requestID(), requestLogger(), gin.Recovery())

	r.GET("/health", s.handleHealth)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/search", s.handleSearch)
		v1.POST("/query", s.handleQuery)
		if s.metrics != nil {
			v1.GET("/metrics", s.handleMetrics)
		}
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("api_server_listening", slog.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// requestID assigns each request a UUID, honoring one supplied by the
// caller.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// requestLogger logs one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		slog.Info("http_request",
			slog.String("request_id", c.GetString("request_id")),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)))
	}
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// writeError maps pipeline errors to HTTP status codes: validation
// errors are the caller's fault, a failed generation is a bad gateway,
// other upstream trouble is service-unavailable, and the rest is a
// plain 500.
func writeError(c *gin.Context, err error) {
	code := corpuserrors.GetCode(err)

	status := http.StatusInternalServerError
	switch {
	case corpuserrors.GetCategory(err) == corpuserrors.CategoryValidation:
		status = http.StatusBadRequest
	case code == corpuserrors.ErrCodeGenerationFailed:
		status = http.StatusBadGateway
	case corpuserrors.GetCategory(err) == corpuserrors.CategoryUpstream:
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		slog.Error("request_failed",
			slog.String("request_id", c.GetString("request_id")),
			slog.String("code", code),
			slog.String("error", err.Error()))
	}

	c.JSON(status, errorResponse{Error: errorBody{
		Code:      code,
		Message:   err.Error(),
		RequestID: c.GetString("request_id"),
	}})
}
