// Package metrics exposes Prometheus collectors for HTTP traffic and community activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tortilla"

// Recorder owns a private registry so tests and multiple handlers never collide on registration.
type Recorder struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	votesTotal      *prometheus.CounterVec
	ratingsTotal    *prometheus.CounterVec
	available       prometheus.Gauge
}

func NewRecorder() *Recorder {
	recorder := &Recorder{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "path"},
		),
		votesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outage_votes_total",
				Help:      "Outage votes by type and outcome code",
			},
			[]string{"vote_type", "outcome"},
		),
		ratingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratings_total",
				Help:      "Rating submissions by outcome code",
			},
			[]string{"outcome"},
		),
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "available",
			Help:      "1 when the community currently reports the tortilla as available",
		}),
	}

	recorder.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		recorder.requestsTotal,
		recorder.requestDuration,
		recorder.votesTotal,
		recorder.ratingsTotal,
		recorder.available,
	)
	return recorder
}

// Middleware records request counts and latency per route template.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		r.requestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		r.requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Outcome labels use "ok" for success and the public error code otherwise.
const OutcomeOK = "ok"

func (r *Recorder) ObserveVote(voteType, outcome string) {
	switch voteType {
	case "outage", "working":
	default:
		voteType = "invalid"
	}
	r.votesTotal.WithLabelValues(voteType, outcome).Inc()
}

func (r *Recorder) ObserveRating(outcome string) {
	r.ratingsTotal.WithLabelValues(outcome).Inc()
}

func (r *Recorder) SetAvailable(available bool) {
	if available {
		r.available.Set(1)
		return
	}
	r.available.Set(0)
}
