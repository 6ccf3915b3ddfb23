package roomlock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus gauges exposed by cmd/discretctl's debug HTTP surface
// (SPEC_FULL.md's domain-stack wiring §2): in-flight synchronisations
// against the global max_concurrent_synchronisation bound, and the current
// backlog of a VerifyAll signature-verification pass.
var (
	inFlightSyncs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "discret",
		Subsystem: "roomlock",
		Name:      "in_flight_syncs",
		Help:      "Number of rooms currently holding the global synchronisation lock.",
	})

	verifyQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "discret",
		Subsystem: "roomlock",
		Name:      "verify_queue_depth",
		Help:      "Number of signatures still queued in the current VerifyAll batch.",
	})
)
