package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/job"
	"github.com/juste-un-gars/anemone_transfer/internal/registry"
	"github.com/juste-un-gars/anemone_transfer/internal/scheduler"
)

// ListJobsHandler handles GET /api/v1/jobs
func (s *Server) ListJobsHandler(c *gin.Context) {
	defs := s.engine.Jobs()
	resp := make([]JobResponse, 0, len(defs))
	for _, def := range defs {
		st, _ := s.engine.State(def.ID)
		resp = append(resp, JobResponse{Job: def, State: st})
	}
	c.JSON(http.StatusOK, resp)
}

// CreateJobHandler handles POST /api/v1/jobs
func (s *Server) CreateJobHandler(c *gin.Context) {
	var def job.Definition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:  ErrCodeInvalidRequest,
			Error: "Invalid request body: " + err.Error(),
		})
		return
	}
	def.ID = 0

	id, err := s.engine.RegisterTimerJob(def)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp, ok := s.jobResponse(id)
	if !ok {
		// removed concurrently
		c.JSON(http.StatusCreated, CreateJobResponse{ID: id})
		return
	}
	c.JSON(http.StatusCreated, CreateJobResponse{ID: id, JobResponse: resp})
}

// GetJobHandler handles GET /api/v1/jobs/:id
func (s *Server) GetJobHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	resp, ok := s.jobResponse(id)
	if !ok {
		notFound(c, id)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateJobHandler handles PUT /api/v1/jobs/:id
func (s *Server) UpdateJobHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var def job.Definition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:  ErrCodeInvalidRequest,
			Error: "Invalid request body: " + err.Error(),
		})
		return
	}

	updated, err := s.engine.UpdateTimerJob(id, def)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !updated {
		notFound(c, id)
		return
	}
	s.respondJob(c, id)
}

// DeleteJobHandler handles DELETE /api/v1/jobs/:id
func (s *Server) DeleteJobHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if !s.engine.RemoveTimerJob(id) {
		notFound(c, id)
		return
	}
	c.Status(http.StatusNoContent)
}

// StartJobHandler handles POST /api/v1/jobs/:id/start
func (s *Server) StartJobHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.engine.StartTimerJob(id); err != nil {
		s.writeError(c, err)
		return
	}
	s.respondJob(c, id)
}

// StopJobHandler handles POST /api/v1/jobs/:id/stop. Stopping a job
// without an armed timer is not an error.
func (s *Server) StopJobHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if _, exists := s.engine.Job(id); !exists {
		notFound(c, id)
		return
	}
	s.engine.StopTimerJob(id)
	s.respondJob(c, id)
}

// RunJobHandler handles POST /api/v1/jobs/:id/run
func (s *Server) RunJobHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.engine.RunNow(id); err != nil {
		s.writeError(c, err)
		return
	}
	resp, _ := s.jobResponse(id)
	c.JSON(http.StatusAccepted, resp)
}

// SaveStateHandler handles POST /api/v1/state/save
func (s *Server) SaveStateHandler(c *gin.Context) {
	if err := s.engine.SaveTimerJobsState(); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HealthHandler handles GET /health
func (s *Server) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
		Jobs:   len(s.engine.Jobs()),
	})
}

func (s *Server) jobResponse(id int64) (JobResponse, bool) {
	def, ok := s.engine.Job(id)
	if !ok {
		return JobResponse{}, false
	}
	st, _ := s.engine.State(id)
	return JobResponse{Job: def, State: st}, true
}

func (s *Server) respondJob(c *gin.Context, id int64) {
	resp, ok := s.jobResponse(id)
	if !ok {
		notFound(c, id)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// writeError maps engine errors to HTTP statuses
func (s *Server) writeError(c *gin.Context, err error) {
	var verr *job.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:     ErrCodeValidation,
			Error:    "Invalid job definition",
			Messages: verr.Messages,
		})
	case errors.Is(err, scheduler.ErrJobNotFound), errors.Is(err, registry.ErrJobNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Code: ErrCodeNotFound, Error: err.Error()})
	case errors.Is(err, scheduler.ErrBusy), errors.Is(err, scheduler.ErrJobDisabled):
		c.JSON(http.StatusConflict, ErrorResponse{Code: ErrCodeConflict, Error: err.Error()})
	case errors.Is(err, scheduler.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: ErrCodeUnavailable, Error: err.Error()})
	default:
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: ErrCodeInternal, Error: err.Error()})
	}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:  ErrCodeInvalidRequest,
			Error: "Invalid job id: " + c.Param("id"),
		})
		return 0, false
	}
	return id, true
}

func notFound(c *gin.Context, id int64) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Code:  ErrCodeNotFound,
		Error: "Job " + strconv.FormatInt(id, 10) + " not found",
	})
}
