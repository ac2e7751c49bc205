// Package metrics exposes Prometheus counters for the license and webhook
// paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

type Metrics struct {
	registry *prometheus.Registry

	WebhookEvents  *prometheus.CounterVec
	LicensesIssued *prometheus.CounterVec
	Verifications  *prometheus.CounterVec
}

var Module = fx.Module("metrics",
	fx.Provide(New),
)

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensed_webhook_events_total",
			Help: "Webhook events by provider, type and outcome.",
		}, []string{"provider", "event_type", "result"}),
		LicensesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensed_licenses_issued_total",
			Help: "Licenses minted by tier and provider.",
		}, []string{"tier", "provider"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensed_license_verifications_total",
			Help: "License verification requests by verdict.",
		}, []string{"result"}),
	}

	registry.MustRegister(m.WebhookEvents, m.LicensesIssued, m.Verifications)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
