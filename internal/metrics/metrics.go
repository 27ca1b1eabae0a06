// Package metrics exposes Prometheus instrumentation for the mirroring engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ServicesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "busmirror_services_tracked",
		Help: "Number of vendor-prefixed services currently recorded in the name registry.",
	})
	MirrorEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "busmirror_mirror_entries",
		Help: "Number of (service, path) mirror entries currently tracked.",
	})
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "busmirror_publish_queue_depth",
		Help: "Number of topics currently pending in the publish queue.",
	})
	PublishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "busmirror_publishes_total",
		Help: "Total number of messages published to the broker, by outcome.",
	}, []string{"outcome"})
	TombstonesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "busmirror_tombstones_total",
		Help: "Total number of tombstone (unpublish) messages emitted.",
	})
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "busmirror_scans_total",
		Help: "Total number of service introspection scans, by outcome.",
	}, []string{"outcome"})
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "busmirror_requests_total",
		Help: "Total number of inbound read/write requests handled, by action and outcome.",
	}, []string{"action", "outcome"})
	BrokerLivenessState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "busmirror_broker_liveness_state",
		Help: "Current broker liveness FSM state (0=disconnected, 1=connected-local, 2=connected-to-cloud, 3=disconnected-from-cloud).",
	})
	RegistrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "busmirror_registrations_total",
		Help: "Total number of cloud-broker registration calls that returned without error, at startup and after cloud-link loss.",
	})
)
