package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "buildinpublic"

// Metrics holds Prometheus collectors for the spar service
type Metrics struct {
	SparTransitions  *prometheus.CounterVec
	ParticipantSyncs *prometheus.CounterVec
	CommitsIngested  prometheus.Counter
	SparCompletions  *prometheus.CounterVec
	StatsSyncs       *prometheus.CounterVec
	RequestCounter   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SparTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "spar",
				Name:      "transitions_total",
				Help:      "Spar status transitions by target status",
			},
			[]string{"to"},
		),
		ParticipantSyncs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "spar",
				Name:      "sync_participant_total",
				Help:      "Per-participant commit syncs by result",
			},
			[]string{"result"},
		),
		CommitsIngested: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "spar",
				Name:      "commits_ingested_total",
				Help:      "Qualifying commits offered to storage (duplicates included)",
			},
		),
		SparCompletions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "spar",
				Name:      "completions_total",
				Help:      "Completed spars by outcome",
			},
			[]string{"outcome"},
		),
		StatsSyncs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "developer",
				Name:      "stats_sync_total",
				Help:      "Per-developer leaderboard stats syncs by result",
			},
			[]string{"result"},
		),
		RequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Noop returns collectors bound to a private registry, for callers that don't export metrics.
func Noop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := c.Route().Path
		m.RequestCounter.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}
