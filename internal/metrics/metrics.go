package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoteshelf_provider_requests_total",
		Help: "Provider calls by provider, operation and outcome",
	}, []string{"provider", "op", "outcome"})

	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quoteshelf_provider_request_duration_seconds",
		Help:    "Duration of provider calls in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "op"})

	FallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoteshelf_provider_fallbacks_total",
		Help: "Searches served by the alternate provider after the active one failed",
	}, []string{"from", "to"})

	SupersededResponsesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quoteshelf_superseded_responses_total",
		Help: "Provider responses discarded because a newer search replaced them",
	})

	TrendingServedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoteshelf_trending_served_total",
		Help: "Trending quote requests by origin (live or cache)",
	}, []string{"origin"})
)

// ObserveProvider records one provider call started at start.
func ObserveProvider(provider, op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ProviderRequestsTotal.WithLabelValues(provider, op, outcome).Inc()
	ProviderRequestDuration.WithLabelValues(provider, op).Observe(time.Since(start).Seconds())
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
