// Package metrics provides Prometheus instrumentation for a leaf engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leafcore"

// Metrics holds every instrument the engine updates. One instance covers
// one leaf; a process hosting several leaves should give each its own
// instance via NewWithRegistry so their gauges don't overwrite each other.
type Metrics struct {
	// Packet flow
	PacketsReceived *prometheus.CounterVec
	PacketsSent     *prometheus.CounterVec
	SendErrors      *prometheus.CounterVec

	// Reliability
	Retransmissions     prometheus.Counter
	ControllerShortcuts prometheus.Counter
	MisroutedFragments  prometheus.Counter
	ParseFailures       prometheus.Counter

	// Message flow
	MessagesDispatched prometheus.Counter
	MessagesSent       prometheus.Counter

	// Engine state
	NeighborsConnected prometheus.Gauge
	RoutesKnown        prometheus.Gauge
	ReassemblyPending  prometheus.Gauge
	HistoryEntries     prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the process-wide metrics instance, registered against
// the default Prometheus registry on first use.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New creates a Metrics instance registered against the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against a custom
// registry.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PacketsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Inbound packets by kind",
		}, []string{"kind"}),
		PacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Outbound packet attempts by kind",
		}, []string{"kind"}),
		SendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Neighbor send failures by packet kind",
		}, []string{"kind"}),

		Retransmissions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retransmissions_total",
			Help:      "Fragments re-sent from history after a dropped NACK",
		}),
		ControllerShortcuts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "controller_shortcuts_total",
			Help:      "Packets handed to the controller after an in-plane send failure",
		}),
		MisroutedFragments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "misrouted_fragments_total",
			Help:      "Fragments that arrived addressed to another node",
		}),
		ParseFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Reassembled fragment groups that did not decode to a message",
		}),

		MessagesDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dispatched_total",
			Help:      "Reassembled messages handed to the application protocol",
		}),
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound messages fragmented and sent",
		}),

		NeighborsConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "neighbors_connected",
			Help:      "Neighbor send endpoints currently installed",
		}),
		RoutesKnown: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "routes_known",
			Help:      "Peers with a stored outbound route",
		}),
		ReassemblyPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reassembly_pending",
			Help:      "Fragment groups currently awaiting completion",
		}),
		HistoryEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_entries",
			Help:      "Fragments retained in send history",
		}),
	}
}
