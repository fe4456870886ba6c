package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var itemsScanned = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vigil_items_scanned_total",
	Help: "Number of fresh items run through the filter catalog.",
}, []string{"type"})

var matchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vigil_filter_matches_total",
	Help: "Number of new enforcement match records, by action tier.",
}, []string{"action"})

var actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vigil_actions_total",
	Help: "Number of enforcement actions applied on the platform.",
}, []string{"action"})

var actionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vigil_action_errors_total",
	Help: "Number of enforcement actions the platform rejected or dropped.",
}, []string{"action"})

var scanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "vigil_scan_duration_seconds",
	Help:    "Duration of one scan pass over a content source.",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
}, []string{"source"})
