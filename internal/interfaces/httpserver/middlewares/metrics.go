package middlewares

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"jan-server/services/chat-api/internal/infrastructure/metrics"
)

// Metrics counts requests per route template. Socket sessions are counted
// but kept out of the latency histogram since they last as long as the client stays.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		upgrade := isWebsocketUpgrade(c.Request)
		began := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		seconds := time.Since(began).Seconds()
		if upgrade {
			seconds = -1
		}
		metrics.RecordRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), seconds)
	}
}
