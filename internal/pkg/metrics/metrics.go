package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal 按方法、路由、状态码统计的请求数。
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmanager_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration 请求耗时分布。
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskmanager_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.3, 1, 3},
		},
		[]string{"method", "route"},
	)

	// HTTPInFlightRequests 当前处理中的请求数。
	HTTPInFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskmanager_http_in_flight_requests",
			Help: "Current number of in-flight HTTP requests",
		},
	)

	// AuthEventsTotal 认证事件计数。event: register / login / refresh / logout / authenticate。
	AuthEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmanager_auth_events_total",
			Help: "Authentication events by type and result",
		},
		[]string{"event", "result"},
	)

	// TaskOperationsTotal 任务写操作计数。op: create / update / delete。
	TaskOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmanager_task_operations_total",
			Help: "Task mutations by operation and result",
		},
		[]string{"op", "result"},
	)

	// TokensRevokedTotal 写入吊销名单的令牌数。
	TokensRevokedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskmanager_tokens_revoked_total",
			Help: "Tokens added to the revocation denylist",
		},
	)
)

var initOnce sync.Once

// InitMetrics 向默认 Registry 注册所有指标，可重复调用。
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPInFlightRequests,
			AuthEventsTotal,
			TaskOperationsTotal,
			TokensRevokedTotal,
		)
	})
}

// Result 将错误映射为指标 result 标签。
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
