// Package metrics exports engine and HTTP counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minhnhutttt/la/internal/qa"
)

// Metrics implements qa.Recorder. Each instance owns its registry so tests
// and multiple servers never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	backfills     *prometheus.CounterVec
	mutations     *prometheus.CounterVec
	verifications *prometheus.CounterVec
	discarded     *prometheus.CounterVec
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		backfills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "la",
			Name:      "identity_backfills_total",
			Help:      "Mutation responses whose identity reference was filled from a fallback.",
		}, []string{"path", "source"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "la",
			Name:      "mutations_total",
			Help:      "Question and answer mutations by outcome.",
		}, []string{"op", "outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "la",
			Name:      "lawyer_verifications_total",
			Help:      "Settled lawyer credential checks by resulting state.",
		}, []string{"state"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "la",
			Name:      "discarded_commits_total",
			Help:      "Results dropped because the view was torn down or superseded.",
		}, []string{"component"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "la",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "la",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.backfills, m.mutations, m.verifications, m.discarded, m.requests, m.latency,
	)
	return m
}

// RegisterGauge exposes a value computed at scrape time, e.g. open views.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "la",
		Name:      name,
		Help:      help,
	}, fn))
}

func (m *Metrics) Backfill(path, source string) {
	m.backfills.WithLabelValues(path, source).Inc()
}

func (m *Metrics) Mutation(op, outcome string) {
	m.mutations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) Verification(state qa.VerificationState) {
	m.verifications.WithLabelValues(string(state)).Inc()
}

func (m *Metrics) DiscardedCommit(component string) {
	m.discarded.WithLabelValues(component).Inc()
}

func (m *Metrics) Request(method, route string, status int, seconds float64) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var _ qa.Recorder = (*Metrics)(nil)
