// Package metrics 以 Prometheus 格式导出推理指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 推理模式
const (
	ModeInvoke   = "invoke"
	ModeStream   = "stream"
	ModeRemember = "remember"
)

// 推理结果
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected" // 写入任何消息之前失败
	OutcomeFailed   = "failed"   // 用户消息写入之后失败
)

// Recorder 记录推理事件，nil 的 *Recorder 可以直接使用，不做任何记录
type Recorder struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	compensations *prometheus.CounterVec
	compFailures  prometheus.Counter
	chunks        prometheus.Counter
}

// NewRecorder 在新的 registry 上注册推理指标
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	r := &Recorder{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "inference",
			Name:      "requests_total",
			Help:      "Inference attempts by mode and outcome",
		}, []string{"mode", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chat",
			Subsystem: "inference",
			Name:      "latency_seconds",
			Help:      "Provider call latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "inference",
			Name:      "compensations_total",
			Help:      "User messages removed after a failed attempt",
		}, []string{"mode"}),
		compFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "inference",
			Name:      "compensation_failures_total",
			Help:      "Compensating deletes that failed",
		}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "inference",
			Name:      "stream_chunks_total",
			Help:      "Content fragments forwarded from streaming providers",
		}),
	}
	registry.MustRegister(
		r.requests,
		r.latency,
		r.compensations,
		r.compFailures,
		r.chunks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Attempt 记录一次结束的推理
func (r *Recorder) Attempt(mode, outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(mode, outcome).Inc()
	if outcome != OutcomeRejected {
		r.latency.WithLabelValues(mode).Observe(took.Seconds())
	}
}

// Compensation 记录一次补偿删除及其是否成功
func (r *Recorder) Compensation(mode string, err error) {
	if r == nil {
		return
	}
	r.compensations.WithLabelValues(mode).Inc()
	if err != nil {
		r.compFailures.Inc()
	}
}

// Chunk 记录一个流式分段
func (r *Recorder) Chunk() {
	if r == nil {
		return
	}
	r.chunks.Inc()
}

// Handler 返回 /metrics 的处理器
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
