// Package metrics exposes the relay's Prometheus instrumentation.
// Collectors are registered on the default registry and served by the
// HTTP adapter's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notibot",
		Name:      "sends_total",
		Help:      "Outbound delivery attempts by kind and outcome.",
	}, []string{"kind", "outcome"})

	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "notibot",
		Name:      "send_retries_total",
		Help:      "Backoff retries performed by the retry executor.",
	})

	RateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "notibot",
		Name:      "rate_limit_waits_total",
		Help:      "Deferred retries caused by platform rate-limit signals.",
	})

	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notibot",
		Name:      "alerts_total",
		Help:      "Monitoring alerts fired, by metric name.",
	}, []string{"metric"})

	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notibot",
		Name:      "alerts_suppressed_total",
		Help:      "Monitoring alerts suppressed by the cooldown window.",
	}, []string{"metric"})

	JobsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notibot",
		Name:      "scheduler_jobs_fired_total",
		Help:      "Scheduled jobs executed, by trigger kind.",
	}, []string{"trigger"})
)
