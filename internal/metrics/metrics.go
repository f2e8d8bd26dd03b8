package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bridgarr"

var (
	// WebhooksTotal counts inbound notifications by outcome (queued, duplicate, ignored, invalid...)
	WebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhooks_total",
		Help:      "Inbound webhook notifications by outcome.",
	}, []string{"outcome"})

	// AcquisitionsTotal counts finished acquisition jobs by terminal status
	AcquisitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "acquisitions_total",
		Help:      "Acquisition jobs by terminal status.",
	}, []string{"status"})

	// AcquisitionStepDuration observes how long each acquisition state took
	AcquisitionStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "acquisition_step_duration_seconds",
		Help:      "Duration of acquisition states.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"step"})

	// LinkRefreshesTotal counts link refresh attempts by provider and outcome
	LinkRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "link_refreshes_total",
		Help:      "Link refresh attempts by provider and outcome.",
	}, []string{"provider", "outcome"})

	// ProviderRequestsTotal counts debrid API calls by provider and outcome
	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Debrid provider API requests by provider and outcome.",
	}, []string{"provider", "outcome"})
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
