package metrics

import (
	"context"

	"storybook-server/internal/domain"
	"storybook-server/internal/notifier"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "storybook"

// Metrics holds the application counters. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
type Metrics struct {
	GenerationsSubmitted prometheus.Counter
	GenerationsCompleted prometheus.Counter
	GenerationsFailed    *prometheus.CounterVec
	SubmissionsRejected  *prometheus.CounterVec
	EntitlementChanges   *prometheus.CounterVec
	BillingWebhooks      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		GenerationsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_submitted_total",
			Help:      "Generation jobs accepted by the job runner.",
		}),
		GenerationsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_completed_total",
			Help:      "Generations that produced an artifact.",
		}),
		GenerationsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_failed_total",
			Help:      "Generations that ended without an artifact, by stage.",
		}, []string{"stage"}),
		SubmissionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_rejected_total",
			Help:      "Submissions rejected before a generation was created, by reason.",
		}, []string{"reason"}),
		EntitlementChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_changes_total",
			Help:      "Entitlement updates applied from billing events, by resulting status.",
		}, []string{"status"}),
		BillingWebhooks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_webhooks_total",
			Help:      "Billing webhook deliveries, by reconciliation outcome.",
		}, []string{"outcome"}),
	}
}

// Subscribe feeds the generation and entitlement counters from domain events.
func (m *Metrics) Subscribe(registry *notifier.Registry) {
	registry.Subscribe(domain.EventGenerationSubmitted, func(context.Context, domain.Event) error {
		m.GenerationsSubmitted.Inc()
		return nil
	})
	registry.Subscribe(domain.EventGenerationCompleted, func(context.Context, domain.Event) error {
		m.GenerationsCompleted.Inc()
		return nil
	})
	registry.Subscribe(domain.EventGenerationFailed, func(_ context.Context, event domain.Event) error {
		stage := "worker"
		if e, ok := event.(domain.GenerationFailed); ok && e.Reason == domain.DispatchFailureReason {
			stage = "dispatch"
		}
		m.GenerationsFailed.WithLabelValues(stage).Inc()
		return nil
	})
	registry.Subscribe(domain.EventEntitlementChanged, func(_ context.Context, event domain.Event) error {
		if e, ok := event.(domain.EntitlementChanged); ok {
			m.EntitlementChanges.WithLabelValues(string(e.Status)).Inc()
		}
		return nil
	})
}

// ObserveRejection counts a submission rejected with reason.
func (m *Metrics) ObserveRejection(reason string) {
	m.SubmissionsRejected.WithLabelValues(reason).Inc()
}

// ObserveWebhook counts one billing webhook delivery.
func (m *Metrics) ObserveWebhook(outcome string) {
	m.BillingWebhooks.WithLabelValues(outcome).Inc()
}
