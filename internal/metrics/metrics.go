// Package metrics exposes Prometheus instrumentation for the host process:
// control-pipe round trips, proxy op latency, storage op counts per
// product, and reload count/duration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ControlPipeRoundTrip tracks the latency of a start/setOptions call
	// waiting on the required `listen` control messages.
	ControlPipeRoundTrip = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hostd_control_pipe_round_trip_seconds",
			Help:    "Time spent waiting for control-pipe listen events.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	// ProxyOpDuration tracks proxy bridge GET/CALL/FREE latency.
	ProxyOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hostd_proxy_op_duration_seconds",
			Help:    "Duration of proxy bridge operations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "transport"},
	)

	// ProxyOpErrors counts failed proxy operations by reason.
	ProxyOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostd_proxy_op_errors_total",
			Help: "Total proxy bridge operation errors.",
		},
		[]string{"op", "reason"},
	)

	// StorageOps counts storage simulator operations per product.
	StorageOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostd_storage_ops_total",
			Help: "Total storage simulator operations.",
		},
		[]string{"product", "op", "outcome"},
	)

	// StorageOpDuration tracks storage simulator operation latency.
	StorageOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hostd_storage_op_duration_seconds",
			Help:    "Duration of storage simulator operations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"product", "op"},
	)

	// Reloads counts setOptions calls by outcome.
	Reloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostd_reloads_total",
			Help: "Total configuration reload attempts.",
		},
		[]string{"outcome"},
	)

	// ReloadDuration tracks setOptions wall-clock duration.
	ReloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hostd_reload_duration_seconds",
			Help:    "Duration of configuration reloads.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReloadEpoch exposes the current reload epoch as a gauge.
	ReloadEpoch = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostd_reload_epoch",
			Help: "Current reload epoch; proxy stubs minted before this value are poisoned.",
		},
	)

	// QueueBacklog tracks per-queue pending message counts.
	QueueBacklog = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hostd_queue_backlog",
			Help: "Pending messages per queue.",
		},
		[]string{"queue"},
	)
)
