package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/melisync/melisync/internal/logging"
)

// Middleware records HTTP metrics for each request except scrapes of skipPath.
func Middleware(m *Metrics, logger *logging.Logger, skipPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipPath != "" && c.Request.URL.Path == skipPath {
			c.Next()
			return
		}

		start := time.Now()
		m.IncHTTPRequestsInFlight()
		defer m.DecHTTPRequestsInFlight()
		c.Next()

		code := c.Writer.Status()
		status := strconv.Itoa(code)
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		m.RecordRequestLatency(endpoint, c.Request.Method, status, time.Since(start).Seconds())
		m.RecordHTTPRequest(endpoint, c.Request.Method, status)

		if code >= 500 {
			m.RecordError("http_"+status, "api")
		}
		if len(c.Errors) > 0 {
			logger.ErrorWithContext(c.Request.Context(), "request error", "path", c.Request.URL.Path, "error", c.Errors.String())
		}
	}
}
