package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	releaseRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dayshift",
		Name:      "release_runs_total",
		Help:      "Release scheduler runs.",
	})

	releaseItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dayshift",
			Name:      "release_items_total",
			Help:      "Due payments processed by the release scheduler, by result.",
		},
		[]string{"result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dayshift",
			Name:      "notifications_total",
			Help:      "Notification deliveries by event type and result.",
		},
		[]string{"event", "result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dayshift",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		},
		[]string{"route", "code"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(releaseRuns, releaseItems, notifications, httpRequests)
	})
}

// ObserveReleaseRun records one scheduler run and its per-item outcomes.
func ObserveReleaseRun(released, failed, skipped int) {
	releaseRuns.Inc()
	releaseItems.WithLabelValues("released").Add(float64(released))
	releaseItems.WithLabelValues("failed").Add(float64(failed))
	releaseItems.WithLabelValues("skipped").Add(float64(skipped))
}

// IncNotification counts a delivery attempt; result is "sent" or "failed".
func IncNotification(event, result string) {
	notifications.WithLabelValues(event, result).Inc()
}

// IncHTTP increments the counter for a route and status class such as "2xx".
func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}
