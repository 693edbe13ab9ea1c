package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Scan kinds
const (
	ScanClasses   = "classes"
	ScanArtifacts = "artifacts"
	ScanManifest  = "manifest"
	StageUnpack   = "unpack"
	StageDisasm   = "disassemble"
)

// Metrics Prometheus 指标收集器，nil 接收者上的方法都是空操作
type Metrics struct {
	logger *logrus.Logger

	// HTTP 请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 分析指标
	analysesTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	scansTotal       *prometheus.CounterVec
	scanDuration     *prometheus.HistogramVec
	classesIndexed   prometheus.Gauge
	permissionsFound prometheus.Gauge
	queriesTotal     *prometheus.CounterVec

	// Worker Pool 指标
	workerPoolSize      prometheus.Gauge
	workerPoolActive    prometheus.Gauge
	workerPoolQueueSize prometheus.Gauge
}

// New 创建指标收集器并注册到默认 registry
func New(logger *logrus.Logger, namespace string) *Metrics {
	if namespace == "" {
		namespace = "droidcarve"
	}

	m := &Metrics{
		logger: logger,

		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path"},
		),

		analysesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyses_total",
				Help:      "Total number of APK analyses",
			},
			[]string{"status"}, // success, failure
		),
		analysisDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_stage_duration_seconds",
				Help:      "Duration of unpack and disassemble stages in seconds",
				Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		scansTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_total",
				Help:      "Total number of index scans",
			},
			[]string{"kind", "status"},
		),
		scanDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scan_duration_seconds",
				Help:      "Index scan duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"kind"},
		),
		classesIndexed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "classes_indexed",
				Help:      "Number of classes in the most recent index",
			},
		),
		permissionsFound: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "permissions_found",
				Help:      "Number of permission entries in the most recent manifest",
			},
		),
		queriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of class queries",
			},
			[]string{"status"}, // ok, invalid_pattern
		),

		workerPoolSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_size",
				Help:      "Total number of workers in the pool",
			},
		),
		workerPoolActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_active",
				Help:      "Number of active workers",
			},
		),
		workerPoolQueueSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_queue_size",
				Help:      "Number of tasks waiting in queue",
			},
		),
	}

	logger.WithField("namespace", namespace).Debug("Prometheus metrics initialized")
	return m
}

// HTTPMiddleware HTTP 请求监控中间件
func (m *Metrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler 返回 Prometheus HTTP Handler
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordAnalysis 记录一次完整分析
func (m *Metrics) RecordAnalysis(err error) {
	if m == nil {
		return
	}
	m.analysesTotal.WithLabelValues(statusLabel(err)).Inc()
}

// ObserveStage 记录解压 / 反汇编耗时
func (m *Metrics) ObserveStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.analysisDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordScan 记录一次索引扫描
func (m *Metrics) RecordScan(kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(kind, statusLabel(err)).Inc()
	m.scanDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// SetIndexSizes 更新类数量和权限数量
func (m *Metrics) SetIndexSizes(classes, permissions int) {
	if m == nil {
		return
	}
	m.classesIndexed.Set(float64(classes))
	m.permissionsFound.Set(float64(permissions))
}

// RecordQuery 记录一次类查询
func (m *Metrics) RecordQuery(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "invalid_pattern"
	}
	m.queriesTotal.WithLabelValues(status).Inc()
}

// UpdateWorkerPoolStats 更新 Worker Pool 统计
func (m *Metrics) UpdateWorkerPoolStats(size, active, queueSize int) {
	if m == nil {
		return
	}
	m.workerPoolSize.Set(float64(size))
	m.workerPoolActive.Set(float64(active))
	m.workerPoolQueueSize.Set(float64(queueSize))
}

func statusLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
