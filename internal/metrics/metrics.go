// Package metrics holds the Prometheus collectors of the render pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	submissions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatreel_submissions_total",
		Help: "Render jobs accepted by the API.",
	})

	enqueueFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatreel_enqueue_failures_total",
			Help: "Enqueue attempts that failed and were left to the sweeper.",
		},
		[]string{"reason"},
	)

	claimConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatreel_claim_conflicts_total",
			Help: "Claim attempts that lost to another actor, by delivery path.",
		},
		[]string{"path"},
	)

	jobOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatreel_job_outcomes_total",
			Help: "Jobs that reached a terminal status, by status and delivery path.",
		},
		[]string{"status", "path"},
	)

	renderSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatreel_render_duration_seconds",
			Help:    "Wall time of the rendering engine per job.",
			Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 90, 120, 180, 300},
		},
		[]string{"engine", "success"},
	)

	rendersInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatreel_renders_in_flight",
		Help: "Renders currently holding a concurrency slot.",
	})

	webhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatreel_webhook_deliveries_total",
			Help: "Webhook delivery attempts by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatreel_http_request_duration_seconds",
			Help:    "API request latency by route pattern, method and status code.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "code"},
	)

	sweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatreel_sweeps_total",
			Help: "Polling sweeper ticks by result.",
		},
		[]string{"result"},
	)
)

// MustRegister registers every collector with the default registry exactly once.
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			submissions,
			enqueueFailures,
			claimConflicts,
			jobOutcomes,
			renderSeconds,
			rendersInFlight,
			webhookDeliveries,
			sweeps,
			httpRequests,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func Submitted() { submissions.Inc() }

func EnqueueFailed(reason string) { enqueueFailures.WithLabelValues(norm(reason)).Inc() }

func ClaimConflict(path string) { claimConflicts.WithLabelValues(norm(path)).Inc() }

func JobFinished(status, path string) { jobOutcomes.WithLabelValues(norm(status), norm(path)).Inc() }

// RenderStarted marks a slot as busy and returns the func that records the
// render once it ends.
func RenderStarted(engine string) func(success bool) {
	rendersInFlight.Inc()
	start := time.Now()
	return func(success bool) {
		rendersInFlight.Dec()
		s := "false"
		if success {
			s = "true"
		}
		renderSeconds.WithLabelValues(norm(engine), s).Observe(time.Since(start).Seconds())
	}
}

func WebhookDelivered(result string) { webhookDeliveries.WithLabelValues(norm(result)).Inc() }

// ObserveRequest records one API request. route is the matched pattern, not
// the raw path, to keep cardinality bounded.
func ObserveRequest(route, method string, code int, d time.Duration) {
	httpRequests.WithLabelValues(norm(route), method, strconv.Itoa(code)).Observe(d.Seconds())
}

func Swept(result string) { sweeps.WithLabelValues(norm(result)).Inc() }

func norm(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
