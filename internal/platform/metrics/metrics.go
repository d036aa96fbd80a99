// Package metrics exposes prometheus counters for event ingestion.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Ingest struct {
	registry *prometheus.Registry

	EventsReceived      *prometheus.CounterVec
	TransitionsAccepted prometheus.Counter
	TransitionsRejected prometheus.Counter
	EventsEmitted       *prometheus.CounterVec
	EventErrors         *prometheus.CounterVec
}

func NewIngest(service string) *Ingest {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	labels := prometheus.Labels{"service": service}

	m := &Ingest{
		registry: registry,
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "runhub_events_received_total",
			Help:        "Inbound state-change events received, by event kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		TransitionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "runhub_transitions_accepted_total",
			Help:        "State transitions accepted and persisted.",
			ConstLabels: labels,
		}),
		TransitionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "runhub_transitions_rejected_total",
			Help:        "State updates rejected as carrying no new information.",
			ConstLabels: labels,
		}),
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "runhub_events_emitted_total",
			Help:        "Canonical state-change events relayed, by event type.",
			ConstLabels: labels,
		}, []string{"type"}),
		EventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "runhub_event_errors_total",
			Help:        "Fatal event processing errors, by error class.",
			ConstLabels: labels,
		}, []string{"class"}),
	}

	registry.MustRegister(
		m.EventsReceived,
		m.TransitionsAccepted,
		m.TransitionsRejected,
		m.EventsEmitted,
		m.EventErrors,
	)
	return m
}

func (m *Ingest) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
