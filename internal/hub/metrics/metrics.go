// Package metrics instruments the broadcast hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the hub's Prometheus metrics.
type Metrics struct {
	EventsPublished   *prometheus.CounterVec
	Subscribers       prometheus.Gauge
	ReplayedEvents    prometheus.Counter
	ResyncsSignalled  prometheus.Counter
	SlowConsumerDrops prometheus.Counter
}

// New creates and registers the hub metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cratekeeper_hub_events_published_total",
			Help: "DomainEvents published, by entity.",
		}, []string{"entity"}),
		Subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cratekeeper_hub_subscribers",
			Help: "Currently registered hub subscriptions.",
		}),
		ReplayedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cratekeeper_hub_replayed_events_total",
			Help: "Events replayed to reconnecting subscribers.",
		}),
		ResyncsSignalled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cratekeeper_hub_resyncs_signalled_total",
			Help: "Subscriptions whose requested sequence had left the replay window.",
		}),
		SlowConsumerDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cratekeeper_hub_slow_consumer_drops_total",
			Help: "Subscriptions force-closed because their queue overflowed.",
		}),
	}
}

// Nop returns metrics backed by unregistered collectors, for tests that build
// many hubs without fighting the default registry.
func Nop() *Metrics {
	return &Metrics{
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nop_hub_events_published_total",
		}, []string{"entity"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nop_hub_subscribers",
		}),
		ReplayedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nop_hub_replayed_events_total",
		}),
		ResyncsSignalled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nop_hub_resyncs_signalled_total",
		}),
		SlowConsumerDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nop_hub_slow_consumer_drops_total",
		}),
	}
}
