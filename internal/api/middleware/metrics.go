package middleware

import (
	"strconv"
	"time"

	"taskmanager/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics 记录请求数、耗时与并发数。路由标签使用注册模板，避免 ID 造成基数膨胀。
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.HTTPInFlightRequests.Inc()
		defer metrics.HTTPInFlightRequests.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
