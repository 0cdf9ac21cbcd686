package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// 轮询指标
	PollCycles    prometheus.Counter
	Sweeps        prometheus.Counter
	SweepDuration prometheus.Histogram

	// 投递指标
	MessagesDelivered prometheus.Counter
	DeliveryFailures  prometheus.Counter

	// 服务商指标
	ProviderErrors  *prometheus.CounterVec
	AuthSuspensions prometheus.Counter

	// 订阅者指标
	SubscribersApproved prometheus.Gauge
	SessionsActive      prometheus.Gauge
	SubscribersPurged   prometheus.Counter
	MailboxesCreated    prometheus.Counter
}

// NewMetrics 创建监控指标并注册到默认注册表
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewTestMetrics 创建使用独立注册表的监控指标，供测试重复构造
func NewTestMetrics() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PollCycles: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inboxrelay_poll_cycles_total",
				Help: "Total number of per-subscriber poll cycles",
			},
		),

		Sweeps: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inboxrelay_sweeps_total",
				Help: "Total number of full poll sweeps",
			},
		),

		SweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "inboxrelay_sweep_duration_seconds",
				Help:    "Poll sweep duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		MessagesDelivered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inboxrelay_messages_delivered_total",
				Help: "Total number of messages delivered to subscribers",
			},
		),

		DeliveryFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inboxrelay_delivery_failures_total",
				Help: "Total number of failed delivery attempts",
			},
		),

		ProviderErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inboxrelay_provider_errors_total",
				Help: "Total number of mail provider errors by class",
			},
			[]string{"type"},
		),

		AuthSuspensions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inboxrelay_auth_suspensions_total",
				Help: "Total number of provider credential suspensions",
			},
		),

		SubscribersApproved: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "inboxrelay_subscribers_approved",
				Help: "Number of approved subscribers",
			},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "inboxrelay_sessions_active",
				Help: "Number of active mailbox sessions",
			},
		),

		SubscribersPurged: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inboxrelay_subscribers_purged_total",
				Help: "Total number of subscribers purged",
			},
		),

		MailboxesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inboxrelay_mailboxes_created_total",
				Help: "Total number of mailboxes provisioned",
			},
		),
	}
}

// RecordPollCycle 记录一次轮询周期
func (m *Metrics) RecordPollCycle() {
	m.PollCycles.Inc()
}

// RecordSweep 记录一次全量轮询
func (m *Metrics) RecordSweep(duration time.Duration) {
	m.Sweeps.Inc()
	m.SweepDuration.Observe(duration.Seconds())
}

// RecordDelivery 记录一次成功投递
func (m *Metrics) RecordDelivery() {
	m.MessagesDelivered.Inc()
}

// RecordDeliveryFailure 记录一次投递失败
func (m *Metrics) RecordDeliveryFailure() {
	m.DeliveryFailures.Inc()
}

// RecordProviderError 记录一次服务商错误
func (m *Metrics) RecordProviderError(errorType string) {
	m.ProviderErrors.WithLabelValues(errorType).Inc()
}

// RecordAuthSuspension 记录一次凭证被拒导致的全局暂停
func (m *Metrics) RecordAuthSuspension() {
	m.AuthSuspensions.Inc()
}

// RecordSubscriberPurged 记录一次订阅者清退
func (m *Metrics) RecordSubscriberPurged() {
	m.SubscribersPurged.Inc()
}

// RecordMailboxCreated 记录一次邮箱创建
func (m *Metrics) RecordMailboxCreated() {
	m.MailboxesCreated.Inc()
}

// UpdateSubscribersApproved 更新已批准订阅者数量
func (m *Metrics) UpdateSubscribersApproved(count int) {
	m.SubscribersApproved.Set(float64(count))
}

// UpdateSessionsActive 更新活动会话数量
func (m *Metrics) UpdateSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
