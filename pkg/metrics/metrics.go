// Package metrics 提供监控指标功能.
// 支持Prometheus标准，收集 HTTP、上传流水线、扫描与分享访问指标.
//
// Example:
//
//	import "github.com/yeisme/cloudvault/pkg/metrics"
//
//	if err := metrics.InitMetrics(cfg.Metrics); err != nil {
//		log.Fatal(err)
//	}
//
//	metrics.FilesBlocked.WithLabelValues("scan").Inc()
package metrics

import (
	"net/http"
	_ "net/http/pprof" // 自动注册pprof端点
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeisme/cloudvault/pkg/configs"
)

const namespace = "cloudvault"

// 全局指标变量.
var (
	// RequestCounter HTTP请求计数器.
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration HTTP请求持续时间.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// ActiveConnections 活跃连接数.
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Number of active connections",
		},
	)

	// UploadBatches 上传批次结果: ok/partial/rejected.
	UploadBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_batches_total",
		Help:      "Upload batches by outcome",
	}, []string{"outcome"})

	// FilesUploaded 成功存储的文件数.
	FilesUploaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "files_uploaded_total",
		Help:      "Files stored and recorded",
	})

	// FilesBlocked 被拦截的文件数: scan/error/rollback.
	FilesBlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "files_blocked_total",
		Help:      "Files blocked during upload",
	}, []string{"reason"})

	// BytesStored 计入配额的字节数.
	BytesStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_stored_total",
		Help:      "Bytes charged to user quotas",
	})

	// ScanVerdicts 扫描结论，phase 为 inline 或 rescan.
	ScanVerdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_verdicts_total",
		Help:      "Content scan verdicts",
	}, []string{"phase", "status"})

	// ShareAccesses 分享访问结果: resolved/granted/bad_password/forbidden/expired/not_found/error.
	ShareAccesses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "share_accesses_total",
		Help:      "Share link access attempts",
	}, []string{"result"})

	// QuotaCorrections 对账任务修正的用户数.
	QuotaCorrections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quota_corrections_total",
		Help:      "Users whose storage usage was corrected by reconciliation",
	})

	// registry Prometheus注册表.
	registry = prometheus.NewRegistry()
	initOnce sync.Once
)

// InitMetrics 初始化Metrics，重复调用只生效一次.
func InitMetrics(config configs.MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	initOnce.Do(func() {
		reg := prometheus.WrapRegistererWith(prometheus.Labels(config.Labels), registry)

		// 注册标准收集器
		if config.RuntimeMetrics {
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
		}

		reg.MustRegister(RequestCounter, RequestDuration, ActiveConnections)
		reg.MustRegister(UploadBatches, FilesUploaded, FilesBlocked, BytesStored,
			ScanVerdicts, ShareAccesses, QuotaCorrections)
	})

	return nil
}

// StartMetricsServer 在调试引擎上挂载 /metrics 与可选的 pprof.
func StartMetricsServer(config configs.MetricsConfig, debugEngine *gin.Engine) error {
	if !config.Enabled {
		return nil
	}

	debugEngine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// 如果启用pprof，注册pprof端点
	if config.Pprof {
		debugEngine.GET("/debug/pprof/*any", gin.WrapH(http.DefaultServeMux))
	}

	return nil
}

// GetRegistry 获取Prometheus注册表.
func GetRegistry() *prometheus.Registry {
	return registry
}
