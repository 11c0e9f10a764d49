// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_service_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_service_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Queue operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	estimates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_wait_estimates_total",
			Help: "Wait-time estimates by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	rateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_service_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"scope"},
	)

	relayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_event_relay_total",
			Help: "Queue events handled by the relay worker",
		},
		[]string{"outcome"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// TrackQueueOperation counts a store operation; outcome is "ok" or an error code.
func TrackQueueOperation(operation, outcome string) {
	queueOperations.WithLabelValues(operation, outcome).Inc()
}

// WaitingCounter reports how many people wait in each queue, keyed by queue id.
type WaitingCounter func(ctx context.Context) (map[string]int, error)

var peopleWaitingDesc = prometheus.NewDesc(
	"queue_people_waiting",
	"People currently waiting per queue",
	[]string{"queue_id"}, nil,
)

// peopleWaiting reads the counts on every scrape, so deleted queues drop out
// and queues created outside the service still show up.
type peopleWaiting struct {
	count   WaitingCounter
	timeout time.Duration
}

func NewPeopleWaitingCollector(count WaitingCounter) prometheus.Collector {
	return peopleWaiting{count: count, timeout: 2 * time.Second}
}

// RegisterPeopleWaiting exposes the per-queue waiting gauge on /metrics.
func RegisterPeopleWaiting(count WaitingCounter) error {
	return prometheus.Register(NewPeopleWaitingCollector(count))
}

func (c peopleWaiting) Describe(ch chan<- *prometheus.Desc) {
	ch <- peopleWaitingDesc
}

func (c peopleWaiting) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	counts, err := c.count(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(peopleWaitingDesc, err)
		return
	}
	for queueID, waiting := range counts {
		ch <- prometheus.MustNewConstMetric(peopleWaitingDesc, prometheus.GaugeValue, float64(waiting), queueID)
	}
}

func TrackEstimate(source, outcome string) {
	estimates.WithLabelValues(source, outcome).Inc()
}

func TrackRateLimited(scope string) {
	rateLimited.WithLabelValues(scope).Inc()
}

func TrackRelay(outcome string, count int) {
	relayEvents.WithLabelValues(outcome).Add(float64(count))
}
