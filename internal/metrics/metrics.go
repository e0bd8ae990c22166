package metrics

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标定义：
// - ctas_task_runs_total：按Pipeline与结果状态统计Task执行次数
// - ctas_task_duration_seconds：Task执行耗时分布（含重试）
// - ctas_task_retries_total：Task重试次数
// - ctas_pipeline_runs_total：按触发方式与结果统计Pipeline运行次数
// - ctas_table_rows：最近一次重建后表的行数
// - http_requests_total / http_request_duration_seconds：HTTP请求计数与耗时
var (
	TaskRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ctas_task_runs_total", Help: "Task 执行计数（按Pipeline/状态）"},
		[]string{"pipeline", "status"},
	)
	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "ctas_task_duration_seconds", Help: "Task 执行耗时（秒）", Buckets: prometheus.ExponentialBuckets(0.05, 2, 14)},
		[]string{"pipeline"},
	)
	TaskRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ctas_task_retries_total", Help: "Task 重试计数"},
		[]string{"pipeline"},
	)
	PipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ctas_pipeline_runs_total", Help: "Pipeline 运行计数（按触发方式/状态）"},
		[]string{"pipeline", "trigger", "status"},
	)
	TableRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "ctas_table_rows", Help: "最近一次重建后的表行数"},
		[]string{"table"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP 请求计数（按路径/方法/状态）"},
		[]string{"path", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP 请求耗时（秒）", Buckets: prometheus.DefBuckets},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(TaskRuns, TaskDuration, TaskRetries, PipelineRuns, TableRows, HTTPRequests, HTTPLatency)
}

// Handler 返回记录基础 HTTP 指标的中间件（QPS/耗时）。
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		dur := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		HTTPLatency.WithLabelValues(path, c.Request.Method).Observe(dur)
		HTTPRequests.WithLabelValues(path, c.Request.Method, fmt.Sprintf("%d", c.Writer.Status())).Inc()
	}
}

// Exposer 返回标准 Prometheus 暴露处理器。
func Exposer() gin.HandlerFunc { return gin.WrapH(promhttp.Handler()) }
