package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tracksync"

var (
	once sync.Once

	tasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Settled tracking tasks by source type and outcome.",
		},
		[]string{"source_type", "outcome"},
	)

	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Supplier status fetch latency, including the per-item delay.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"source_type", "result"},
	)

	updates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_updates_total",
			Help:      "Backend order updates by result.",
		},
		[]string{"result"},
	)

	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by terminal status.",
		},
		[]string{"status"},
	)

	inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Tasks currently holding a concurrency slot.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Control API requests by route.",
		},
		[]string{"route"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(tasks, fetchDuration, updates, runs, inFlight, httpRequests)
	})
}

// ObserveTask counts one settled task. outcome is "updated", "unchanged" or "error".
func ObserveTask(sourceType, outcome string) {
	tasks.WithLabelValues(sourceType, outcome).Inc()
}

func ObserveFetch(sourceType string, err error, d time.Duration) {
	fetchDuration.WithLabelValues(sourceType, result(err)).Observe(d.Seconds())
}

func ObserveUpdate(err error) {
	updates.WithLabelValues(result(err)).Inc()
}

func ObserveRun(status string) {
	runs.WithLabelValues(status).Inc()
}

// TaskStarted and TaskDone track slot occupancy.
func TaskStarted() {
	inFlight.Inc()
}

func TaskDone() {
	inFlight.Dec()
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
