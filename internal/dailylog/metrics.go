package dailylog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// dirtyBacklog exposes the current count of (room, entity, day) buckets
// awaiting recompute (SPEC_FULL.md's domain-stack wiring §2), surfaced by
// cmd/discretctl's debug HTTP surface alongside internal/roomlock's gauges.
var dirtyBacklog = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "discret",
	Subsystem: "dailylog",
	Name:      "dirty_backlog",
	Help:      "Number of (room, entity, day) buckets currently marked dirty.",
})
