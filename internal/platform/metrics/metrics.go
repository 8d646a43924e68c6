package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the payment pipeline. The
// missing-correlation and capacity counters back alerts: both mean money
// moved without the matching fulfillment.
type Metrics struct {
	IntentsCreated      prometheus.Counter
	WebhooksReceived    *prometheus.CounterVec
	SignatureFailures   prometheus.Counter
	Fulfillments        *prometheus.CounterVec
	MissingCorrelations prometheus.Counter
	CorrelationRecovery prometheus.Counter
	CapacityExceeded    prometheus.Counter
	ReceiptsSent        prometheus.Counter
	ReceiptsSkipped     prometheus.Counter
	TicketsIssued       prometheus.Counter
	FulfillmentLatency  prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics against a caller-supplied registerer so
// tests can use a throwaway registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IntentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "mp_payment_intents_created_total",
			Help: "Total number of payment intents created",
		}),
		WebhooksReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mp_payment_webhooks_received_total",
			Help: "Total webhook deliveries by event type",
		}, []string{"type"}),
		SignatureFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "mp_payment_webhook_signature_failures_total",
			Help: "Total webhook deliveries rejected for a bad signature",
		}),
		Fulfillments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mp_payment_fulfillments_total",
			Help: "Total fulfillment attempts by purchase kind and outcome",
		}, []string{"kind", "outcome"}),
		MissingCorrelations: factory.NewCounter(prometheus.CounterOpts{
			Name: "mp_payment_missing_correlations_total",
			Help: "Webhook deliveries with no correlation record and no ledger row (alertable fulfillment loss)",
		}),
		CorrelationRecovery: factory.NewCounter(prometheus.CounterOpts{
			Name: "mp_payment_correlation_recoveries_total",
			Help: "Fulfillments recovered from provider intent metadata after a cache miss",
		}),
		CapacityExceeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "mp_event_capacity_exceeded_total",
			Help: "Paid registrations rejected because the event was full (needs manual reconciliation)",
		}),
		ReceiptsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "mp_receipt_emails_sent_total",
			Help: "Total receipt emails sent",
		}),
		ReceiptsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "mp_receipt_emails_skipped_total",
			Help: "Receipt emails skipped by the idempotency guard",
		}),
		TicketsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "mp_tickets_issued_total",
			Help: "Total tickets issued",
		}),
		FulfillmentLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mp_fulfillment_duration_seconds",
			Help:    "Latency of webhook fulfillment processing",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
