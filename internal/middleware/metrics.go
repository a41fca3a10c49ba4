package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/driving-school-api/internal/service"
)

// Metrics returns middleware that records request latency and counts. Paths in
// skip, typically the scrape endpoint itself, are not observed. Unmatched
// routes are folded into one label so arbitrary URLs cannot grow the series.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		if _, ok := skipped[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
