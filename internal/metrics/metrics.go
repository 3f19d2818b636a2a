package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "qode"

var (
	// TicketsIssuedTotal counts tickets issued by joins
	TicketsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tickets_issued_total",
		Help:      "Total number of tickets issued",
	})

	// JoinsReplayedTotal counts joins answered with the device's existing ticket
	JoinsReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "joins_replayed_total",
		Help:      "Total number of joins that returned an existing active ticket",
	})

	// TicketTransitionsTotal counts completed ticket transitions by resulting status
	TicketTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticket_transitions_total",
		Help:      "Total number of ticket transitions by resulting status",
	}, []string{"status"})

	// QueuesCreatedTotal counts created queues
	QueuesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queues_created_total",
		Help:      "Total number of queues created",
	})

	// ObserversConnected tracks the number of registered observers
	ObserversConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "observers_connected",
		Help:      "Number of observers currently registered",
	})

	// BroadcastsTotal counts fan-outs to at least one observer
	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcasts_total",
		Help:      "Total number of queue update fan-outs",
	})

	// BroadcastFailuresTotal counts observers dropped after a failed send
	BroadcastFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_failures_total",
		Help:      "Total number of observers dropped after a failed send",
	})

	// EventPublishFailuresTotal counts domain events that could not be published
	EventPublishFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_publish_failures_total",
		Help:      "Total number of domain events that failed to publish",
	}, []string{"event_type"})

	// HTTPRequestDuration observes request latency by route
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// HTTPMiddleware records request latency per route template
func HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
