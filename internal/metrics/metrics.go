// Package metrics 提供Prometheus监控指标
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rota"

type collectors struct {
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	solveTotal   *prometheus.CounterVec
	solveLatency *prometheus.HistogramVec

	assignmentsPersisted prometheus.Counter
	policyCache          *prometheus.CounterVec
	debugArtifacts       *prometheus.CounterVec
	slowQueries          *prometheus.CounterVec
}

var registry = sync.OnceValue(func() *collectors {
	return &collectors{
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP请求总数",
		}, []string{"method", "path", "status"}),
		httpLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP请求延迟",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 60, 300},
		}, []string{"method", "path"}),
		solveTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solve_total",
			Help:      "求解与修复次数",
		}, []string{"mode", "outcome"}),
		solveLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "求解与修复端到端耗时",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		assignmentsPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_persisted_total",
			Help:      "批量写入的排班分配行数",
		}),
		policyCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_cache_total",
			Help:      "有效策略缓存访问次数",
		}, []string{"result"}),
		debugArtifacts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_debug_artifacts_total",
			Help:      "求解调试文件写入次数",
		}, []string{"result"}),
		slowQueries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_slow_queries_total",
			Help:      "超过阈值的SQL与事务次数",
		}, []string{"op"}),
	}
})

// Handler 返回 Prometheus 指标端点
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequestMetrics 记录HTTP请求指标
func RecordRequestMetrics(method, path string, status int, duration time.Duration) {
	c := registry()
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSolve 记录一次求解结果，outcome 为成功或错误码
func RecordSolve(mode, outcome string, duration time.Duration) {
	c := registry()
	c.solveTotal.WithLabelValues(mode, outcome).Inc()
	c.solveLatency.WithLabelValues(mode).Observe(duration.Seconds())
}

// AddAssignmentsPersisted 累加写入行数
func AddAssignmentsPersisted(n int) {
	registry().assignmentsPersisted.Add(float64(n))
}

// RecordPolicyCache 记录缓存命中或未命中
func RecordPolicyCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	registry().policyCache.WithLabelValues(result).Inc()
}

// RecordDebugArtifact 记录调试文件写入结果
func RecordDebugArtifact(ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	registry().debugArtifacts.WithLabelValues(result).Inc()
}

// RecordSlowQuery 记录一次慢SQL或慢事务
func RecordSlowQuery(op string) {
	registry().slowQueries.WithLabelValues(op).Inc()
}
