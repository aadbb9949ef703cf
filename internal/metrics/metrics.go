package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// campaignRuns counts pipeline invocations by outcome.
	// Labels:
	// - outcome: "sent", "failed", "skipped", "lost_claim", "error"
	campaignRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "garage",
			Subsystem: "campaign",
			Name:      "runs_total",
			Help:      "Campaign send pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	// contactSends counts per-recipient outcomes.
	// Labels:
	// - status: "sent" or "failed"
	// - kind:   provider error kind, "none" on success
	contactSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "garage",
			Subsystem: "campaign",
			Name:      "contact_sends_total",
			Help:      "Per-contact send outcomes",
		},
		[]string{"status", "kind"},
	)

	providerSendSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "garage",
			Subsystem: "email",
			Name:      "provider_send_seconds",
			Help:      "Latency of a single provider send call",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "status"},
	)

	// jobAttempts counts job runner handler invocations.
	// Labels:
	// - result: "ack", "retry", "dead"
	jobAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "garage",
			Subsystem: "queue",
			Name:      "job_attempts_total",
			Help:      "Job handler attempts by result",
		},
		[]string{"topic", "result"},
	)
)

// IncCampaignRun increments the run counter for the given outcome.
func IncCampaignRun(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	campaignRuns.WithLabelValues(outcome).Inc()
}

// IncContactSend increments the per-contact counter.
func IncContactSend(status, kind string) {
	if kind == "" {
		kind = "none"
	}
	contactSends.WithLabelValues(status, kind).Inc()
}

// ObserveProviderSend records the duration of one provider call in seconds.
func ObserveProviderSend(provider, status string, seconds float64) {
	if provider == "" {
		provider = "unknown"
	}
	providerSendSeconds.WithLabelValues(provider, status).Observe(seconds)
}

func IncJobAttempt(topic, result string) {
	jobAttempts.WithLabelValues(topic, result).Inc()
}
