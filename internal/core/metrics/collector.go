package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-natmap/pkg/types"
)

const namespace = "natmap"

// 操作名称
const (
	OpMap        = "map"
	OpUnmap      = "unmap"
	OpExternalIP = "external_ip"
	OpDestroy    = "destroy"
)

// 结果标签
const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Collector 端口映射指标
type Collector struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	renewals     *prometheus.CounterVec
	openMappings prometheus.Gauge
}

// NewCollector 创建指标收集器并注册到私有 Registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Port mapping operations by operation, method and result.",
		}, []string{"op", "method", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of port mapping operations including fallback.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		}, []string{"op"}),
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renewals_total",
			Help:      "Automatic lease renewals by method and result.",
		}, []string{"method", "result"}),
		openMappings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_mappings",
			Help:      "Number of mappings currently tracked.",
		}),
	}
	c.registry.MustRegister(c.operations, c.duration, c.renewals, c.openMappings)
	return c
}

// Registry 返回私有 Registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler 返回 /metrics HTTP 处理器
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveOperation 记录一次操作；method 为成功的协议，失败时为 MethodNone
func (c *Collector) ObserveOperation(op string, method types.Method, err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(op, method.String(), result(err)).Inc()
	c.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveRenewal 记录一次续期
func (c *Collector) ObserveRenewal(method types.Method, err error) {
	if c == nil {
		return
	}
	c.renewals.WithLabelValues(method.String(), result(err)).Inc()
}

// SetOpenMappings 设置当前映射数
func (c *Collector) SetOpenMappings(n int) {
	if c == nil {
		return
	}
	c.openMappings.Set(float64(n))
}

func result(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}
