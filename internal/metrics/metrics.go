package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process's Prometheus metrics, trimmed from the
// teacher's much larger payment/RPC/cart/refund/archival set down to the
// counters this domain's components actually produce: webhook delivery
// outcomes, billing cycle outcomes, and chaos-coordinator decisions.
// Mounted at the admin-only /_config/metrics endpoint.
type Metrics struct {
	// Webhook delivery metrics, observed by internal/webhooks.Pipeline.
	WebhookDeliveriesTotal *prometheus.CounterVec
	WebhookRetriesTotal    *prometheus.CounterVec
	WebhookDeliveryDuration *prometheus.HistogramVec

	// Billing cycle metrics, observed by internal/billing.Engine.
	BillingCyclesTotal     *prometheus.CounterVec
	BillingDunningTotal    prometheus.Counter

	// Chaos coordinator decisions, observed by internal/chaos.
	ChaosPaymentDecisionsTotal *prometheus.CounterVec
	ChaosAPIDecisionsTotal     *prometheus.CounterVec
	ChaosEventDecisionsTotal   *prometheus.CounterVec
}

// New creates and registers the process's Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		WebhookDeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paper_tiger_webhook_deliveries_total",
				Help: "Total number of webhook delivery attempts",
			},
			[]string{"event_type", "status"},
		),
		WebhookRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paper_tiger_webhook_retries_total",
				Help: "Total number of webhook delivery retry attempts",
			},
			[]string{"event_type"},
		),
		WebhookDeliveryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paper_tiger_webhook_delivery_duration_seconds",
				Help:    "Time taken per webhook delivery attempt",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"event_type"},
		),
		BillingCyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paper_tiger_billing_cycles_total",
				Help: "Total number of billing cycles processed",
			},
			[]string{"outcome"},
		),
		BillingDunningTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "paper_tiger_billing_dunning_total",
				Help: "Total number of subscriptions transitioned to past_due",
			},
		),
		ChaosPaymentDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paper_tiger_chaos_payment_decisions_total",
				Help: "Total number of chaos-coordinator payment decisions",
			},
			[]string{"outcome"},
		),
		ChaosAPIDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paper_tiger_chaos_api_decisions_total",
				Help: "Total number of chaos-coordinator API decisions",
			},
			[]string{"outcome"},
		),
		ChaosEventDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paper_tiger_chaos_event_decisions_total",
				Help: "Total number of chaos-coordinator event reorder/duplicate decisions",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveWebhookDelivery records one webhook delivery attempt.
func (m *Metrics) ObserveWebhookDelivery(eventType, status string, duration time.Duration, attempt int) {
	m.WebhookDeliveriesTotal.WithLabelValues(eventType, status).Inc()
	m.WebhookDeliveryDuration.WithLabelValues(eventType).Observe(duration.Seconds())
	if attempt > 1 {
		m.WebhookRetriesTotal.WithLabelValues(eventType).Inc()
	}
}

// ObserveBillingCycle records one billing-engine cycle outcome ("paid" or
// "declined"), and a dunning transition when the subscription crossed
// into past_due on this cycle.
func (m *Metrics) ObserveBillingCycle(outcome string, wentPastDue bool) {
	m.BillingCyclesTotal.WithLabelValues(outcome).Inc()
	if wentPastDue {
		m.BillingDunningTotal.Inc()
	}
}

// ObserveChaosPaymentDecision records a payment-chaos outcome ("ok" or a
// decline code).
func (m *Metrics) ObserveChaosPaymentDecision(outcome string) {
	m.ChaosPaymentDecisionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveChaosAPIDecision records an API-chaos outcome ("ok", "timeout",
// "rate_limit", or "server_error").
func (m *Metrics) ObserveChaosAPIDecision(outcome string) {
	m.ChaosAPIDecisionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveChaosEventDecision records an event-chaos outcome ("reordered"
// or "duplicated").
func (m *Metrics) ObserveChaosEventDecision(outcome string) {
	m.ChaosEventDecisionsTotal.WithLabelValues(outcome).Inc()
}
