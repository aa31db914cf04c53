// Package metrics exposes the relay's Prometheus metrics. Counters are
// gathered per batch in a Session and flushed when the batch ends.
package metrics

import (
	"time"

	"notification-hub/order-relay/internal/failure"
	"notification-hub/shared/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "order_relay"

type Collector struct {
	registry *prometheus.Registry

	EventsSeen       *prometheus.CounterVec
	EventsProcessed  *prometheus.CounterVec
	EventsFailed     *prometheus.CounterVec
	EventsDuplicate  *prometheus.CounterVec
	EventsMissingKey *prometheus.CounterVec
	Cancellations    *prometheus.CounterVec
	BatchDuration    *prometheus.HistogramVec
	ConsumerFailures *prometheus.CounterVec
}

// NewCollector creates the metrics on a registry of their own, together
// with the Go runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		EventsSeen: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_seen_total",
				Help:      "Total number of upstream events read",
			},
			[]string{"event_type", "producer"},
		),
		EventsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_processed_total",
				Help:      "Total number of events turned into orders and sent",
			},
			[]string{"event_type", "producer"},
		),
		EventsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_failed_total",
				Help:      "Total number of events dropped because they were invalid",
			},
			[]string{"event_type", "producer"},
		),
		EventsDuplicate: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_duplicate_total",
				Help:      "Total number of events whose order had already been sent",
			},
			[]string{"event_type", "producer"},
		),
		EventsMissingKey: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_missing_key_total",
				Help:      "Total number of events without a usable key",
			},
			[]string{"event_type"},
		),
		Cancellations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cancellations_total",
				Help:      "Cancellation requests by outcome (sent, duplicate, not_found, disabled)",
			},
			[]string{"outcome"},
		),
		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Duration of batch processing",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		ConsumerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consumer_failures_total",
				Help:      "Failed polling iterations by error kind",
			},
			[]string{"event_type", "kind"},
		),
	}

	c.registry.MustRegister(
		c.EventsSeen,
		c.EventsProcessed,
		c.EventsFailed,
		c.EventsDuplicate,
		c.EventsMissingKey,
		c.Cancellations,
		c.BatchDuration,
		c.ConsumerFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry is what the /metrics handler gathers from.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RecordMetrics runs fn with a fresh session and flushes the session's
// counts and the batch duration afterwards, whether fn failed or not.
func (c *Collector) RecordMetrics(eventType domain.EventType, fn func(*Session) error) error {
	s := newSession()
	start := time.Now()
	defer func() {
		c.BatchDuration.WithLabelValues(string(eventType)).Observe(time.Since(start).Seconds())
		c.flush(eventType, s)
	}()
	return fn(s)
}

// ConsumerFailure counts one failed polling iteration.
func (c *Collector) ConsumerFailure(eventType domain.EventType, kind failure.Kind) {
	c.ConsumerFailures.WithLabelValues(string(eventType), kind.String()).Inc()
}

func (c *Collector) flush(eventType domain.EventType, s *Session) {
	et := string(eventType)
	for producer, n := range s.seen {
		c.EventsSeen.WithLabelValues(et, producer).Add(float64(n))
	}
	for producer, n := range s.processed {
		c.EventsProcessed.WithLabelValues(et, producer).Add(float64(n))
	}
	for producer, n := range s.failed {
		c.EventsFailed.WithLabelValues(et, producer).Add(float64(n))
	}
	for producer, n := range s.duplicate {
		c.EventsDuplicate.WithLabelValues(et, producer).Add(float64(n))
	}
	if s.missingKey > 0 {
		c.EventsMissingKey.WithLabelValues(et).Add(float64(s.missingKey))
	}
	for outcome, n := range s.cancellations {
		c.Cancellations.WithLabelValues(outcome).Add(float64(n))
	}
}
