// Package api exposes the transfer engine over HTTP for the UI layer.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/events"
	"github.com/juste-un-gars/anemone_transfer/internal/job"
)

const DefaultShutdownTimeout = 10 * time.Second

// Engine is the part of the application the API drives
type Engine interface {
	RegisterTimerJob(def job.Definition) (int64, error)
	UpdateTimerJob(id int64, def job.Definition) (bool, error)
	RemoveTimerJob(id int64) bool
	StartTimerJob(id int64) error
	StopTimerJob(id int64) bool
	RunNow(id int64) error
	SaveTimerJobsState() error
	Job(id int64) (job.Definition, bool)
	Jobs() []job.Definition
	State(id int64) (job.RuntimeState, bool)
	Subscribe(buffer int) (<-chan events.Event, func())
}

// Server represents the control API server
type Server struct {
	engine    Engine
	router    *gin.Engine
	logger    *zap.Logger
	startTime time.Time

	// heartbeat is the idle interval between SSE keep-alive comments
	heartbeat time.Duration
}

// NewServer creates the API server and its routes
func NewServer(engine Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "api"))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger))
	router.Use(RecoveryMiddleware(logger))

	s := &Server{
		engine:    engine,
		router:    router,
		logger:    logger,
		startTime: time.Now(),
		heartbeat: 15 * time.Second,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		// Job management
		api.GET("/jobs", s.ListJobsHandler)
		api.POST("/jobs", s.CreateJobHandler)
		api.GET("/jobs/:id", s.GetJobHandler)
		api.PUT("/jobs/:id", s.UpdateJobHandler)
		api.DELETE("/jobs/:id", s.DeleteJobHandler)

		// Timer control
		api.POST("/jobs/:id/start", s.StartJobHandler)
		api.POST("/jobs/:id/stop", s.StopJobHandler)
		api.POST("/jobs/:id/run", s.RunJobHandler)

		api.POST("/state/save", s.SaveStateHandler)
		api.GET("/events", s.EventsHandler)
	}

	s.router.GET("/health", s.HealthHandler)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
// No write timeout is set: the event stream is long-lived.
func (s *Server) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control API listening", zap.String("addr", listener.Addr().String()))
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("control API shutdown incomplete", zap.Error(err))
		return err
	}
	s.logger.Info("control API stopped")
	return nil
}
