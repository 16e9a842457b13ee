package metrics

import (
	"github.com/Dhoini/Subscription-microservice/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SubscriptionMetrics интерфейс для метрик реконсиляции подписок
type SubscriptionMetrics interface {
	IncWebhookEvent(kind string, outcome string)
	ObserveReconcileDuration(kind string, seconds float64)
	IncAccessCheck(granted bool, failOpen bool)
	IncSubscriptionCreated(tier string)
}

type subscriptionMetrics struct {
	log               *logger.Logger
	webhookEvents     *prometheus.CounterVec
	reconcileDuration *prometheus.HistogramVec
	accessChecks      *prometheus.CounterVec
	subscriptionsMade *prometheus.CounterVec
}

// NewSubscriptionMetrics создает новые метрики подписок
func NewSubscriptionMetrics(registry *prometheus.Registry, log *logger.Logger) SubscriptionMetrics {
	webhookEvents := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "The total number of processed billing webhook events by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	reconcileDuration := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subscription_reconcile_duration_seconds",
			Help:    "Time spent applying a billing event to the subscription record",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	accessChecks := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_checks_total",
			Help: "The total number of entitlement checks by result",
		},
		[]string{"granted", "fail_open"},
	)

	subscriptionsMade := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_created_total",
			Help: "The total number of subscriptions created or renewed by plan tier",
		},
		[]string{"tier"},
	)

	return &subscriptionMetrics{
		log:               log,
		webhookEvents:     webhookEvents,
		reconcileDuration: reconcileDuration,
		accessChecks:      accessChecks,
		subscriptionsMade: subscriptionsMade,
	}
}

// IncWebhookEvent увеличивает счетчик обработанных вебхук-событий
func (m *subscriptionMetrics) IncWebhookEvent(kind string, outcome string) {
	m.webhookEvents.WithLabelValues(kind, outcome).Inc()
}

// ObserveReconcileDuration записывает длительность применения события
func (m *subscriptionMetrics) ObserveReconcileDuration(kind string, seconds float64) {
	m.reconcileDuration.WithLabelValues(kind).Observe(seconds)
}

// IncAccessCheck увеличивает счетчик проверок доступа
func (m *subscriptionMetrics) IncAccessCheck(granted bool, failOpen bool) {
	m.accessChecks.WithLabelValues(boolLabel(granted), boolLabel(failOpen)).Inc()
}

// IncSubscriptionCreated увеличивает счетчик созданных подписок
func (m *subscriptionMetrics) IncSubscriptionCreated(tier string) {
	m.subscriptionsMade.WithLabelValues(tier).Inc()
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
