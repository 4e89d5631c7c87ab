// Package telemetry holds the Prometheus instrumentation shared across the
// engine. Collectors are registered on the default registry and exposed via
// promhttp at /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StoreAppends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trellis_store_appends_total",
		Help: "Messages appended to conversation logs.",
	})
	StorePageReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trellis_store_page_reads_total",
		Help: "Backward page reads served by the store.",
	})
	TailDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trellis_tail_deliveries_total",
		Help: "Messages delivered to live tail subscribers.",
	})
	TailDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trellis_tail_dropped_total",
		Help: "Tail deliveries dropped due to a full subscriber buffer.",
	})
	TailSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trellis_tail_subscribers",
		Help: "Currently registered tail subscriptions.",
	})
	ReconcileReplaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trellis_reconcile_replaced_total",
		Help: "Provisional entries replaced in place by confirmed messages.",
	})
	ReconcileDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trellis_reconcile_duplicates_total",
		Help: "Confirmed deliveries ignored because the id was already visible.",
	})
	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trellis_send_failures_total",
		Help: "Provisional messages marked failed (write error or timeout).",
	})
	AccessDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trellis_access_denied_total",
		Help: "Send or read attempts rejected by the membership gate.",
	})
	MaintenanceRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trellis_maintenance_runs_total",
		Help: "Completed preview-refresh maintenance runs.",
	})
)
