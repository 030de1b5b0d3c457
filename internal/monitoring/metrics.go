package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 投递被拒绝的原因标签
const (
	RejectParse   = "parse"
	RejectRelay   = "relay"
	RejectLimit   = "limit"
	RejectStorage = "storage"
	RejectInvalid = "invalid_identity"
)

// Metrics 监控指标
//
// 每个实例持有独立的注册表；所有方法对 nil 接收者安全，未启用指标时可直接传 nil。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 邮件指标
	MessagesStored     prometheus.Counter
	MessagesEvicted    prometheus.Counter
	DeliveriesRejected *prometheus.CounterVec
	RecipientsSkipped  prometheus.Counter

	// SMTP 指标
	SMTPSessionsActive  prometheus.Gauge
	EmailProcessingTime prometheus.Histogram

	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标并注册到 reg，reg 为 nil 时新建注册表。
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xinici_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xinici_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		MessagesStored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "xinici_messages_stored_total",
				Help: "Total number of messages written to a mailbox",
			},
		),

		MessagesEvicted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "xinici_messages_evicted_total",
				Help: "Total number of messages evicted by the mailbox capacity limit",
			},
		),

		DeliveriesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xinici_deliveries_rejected_total",
				Help: "Total number of rejected deliveries",
			},
			[]string{"reason"},
		),

		RecipientsSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "xinici_recipients_skipped_total",
				Help: "Total number of malformed recipients skipped during fan-out",
			},
		),

		SMTPSessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "xinici_smtp_sessions_active",
				Help: "Number of open SMTP sessions",
			},
		),

		EmailProcessingTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "xinici_email_processing_duration_seconds",
				Help:    "Time spent parsing and storing one inbound message",
				Buckets: prometheus.DefBuckets,
			},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "xinici_panics_total",
				Help: "Total number of recovered panics",
			},
		),
	}
}

// Registry 返回指标所在的注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordMessageStored 记录邮件入库
func (m *Metrics) RecordMessageStored() {
	if m == nil {
		return
	}
	m.MessagesStored.Inc()
}

// RecordMessageEvicted 记录容量淘汰
func (m *Metrics) RecordMessageEvicted() {
	if m == nil {
		return
	}
	m.MessagesEvicted.Inc()
}

// RecordRejected 记录被拒绝的投递
func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.DeliveriesRejected.WithLabelValues(reason).Inc()
}

// RecordSkippedRecipient 记录被跳过的收件人
func (m *Metrics) RecordSkippedRecipient() {
	if m == nil {
		return
	}
	m.RecipientsSkipped.Inc()
}

// SessionOpened 记录 SMTP 会话建立
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SMTPSessionsActive.Inc()
}

// SessionClosed 记录 SMTP 会话结束
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SMTPSessionsActive.Dec()
}

// RecordEmailProcessingTime 记录邮件处理时间
func (m *Metrics) RecordEmailProcessingTime(duration time.Duration) {
	if m == nil {
		return
	}
	m.EmailProcessingTime.Observe(duration.Seconds())
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
