package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/juste-un-gars/anemone_transfer/internal/events"
)

// EventsHandler handles GET /api/v1/events as a server-sent event stream.
// ?job_id=N restricts the stream to one job.
func (s *Server) EventsHandler(c *gin.Context) {
	var jobID int64
	if raw := c.Query("job_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeInvalidRequest, Error: "Invalid job_id: " + raw})
			return
		}
		jobID = id
	}

	ch, cancel := s.engine.Subscribe(events.DefaultBuffer)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			if jobID != 0 && ev.JobID != jobID {
				return true
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-heartbeat.C:
			_, err := io.WriteString(w, ": keep-alive\n\n")
			return err == nil
		case <-ctx.Done():
			return false
		}
	})
}
