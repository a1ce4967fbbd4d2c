package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		c.Next()

		// Route template, so per-ID paths do not explode the label space
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(method, path, status, time.Since(start), int64(c.Writer.Size()))
	}
}

// Timer measures a startup phase
type Timer struct {
	start   time.Time
	metrics *Metrics
	phase   string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, phase string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		phase:   phase,
	}
}

// Stop stops the timer and records the duration
func (t *Timer) Stop(status string) time.Duration {
	d := time.Since(t.start)
	t.metrics.StartupPhases.WithLabelValues(t.phase, status).Observe(d.Seconds())
	return d
}
