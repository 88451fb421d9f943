package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the split timer.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	runsStarted     prometheus.Counter
	runsFinished    prometheus.Counter
	splitsTotal     prometheus.Counter
	personalBests   prometheus.Counter
	goldSplits      prometheus.Counter
	ignoredEvents   *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	currentSection  prometheus.Gauge
}

// New creates and registers Prometheus metrics for the timer.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speedy_http_requests_total",
			Help: "Control HTTP requests received, by method and route",
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speedy_http_errors_total",
			Help: "Control HTTP responses with error status (4xx or 5xx), by route and code",
		}, []string{"route", "code"}),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speedy_runs_started_total",
			Help: "Total number of runs started",
		}),
		runsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speedy_runs_finished_total",
			Help: "Total number of runs that reached the last section",
		}),
		splitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speedy_splits_total",
			Help: "Total number of committed section splits",
		}),
		personalBests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speedy_personal_bests_total",
			Help: "Total number of finished runs that became the new personal best",
		}),
		goldSplits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speedy_gold_splits_total",
			Help: "Total number of committed segments faster than the sum of best",
		}),
		ignoredEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speedy_ignored_events_total",
			Help: "Advance triggers dropped or ignored, by reason",
		}, []string{"reason"}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speedy_persist_failures_total",
			Help: "Record writes that failed, by record kind",
		}, []string{"record"}),
		currentSection: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speedy_current_section",
			Help: "Index of the section being timed, -1 when no run is active",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.runsStarted,
		m.runsFinished,
		m.splitsTotal,
		m.personalBests,
		m.goldSplits,
		m.ignoredEvents,
		m.persistFailures,
		m.currentSection,
	)
	m.currentSection.Set(-1)

	return m
}

// IncRequests counts a request served by route, the matched chi pattern.
func (m *Metrics) IncRequests(method, route string) {
	m.requestsTotal.WithLabelValues(method, route).Inc()
}

// IncErrors counts an error response on route.
func (m *Metrics) IncErrors(route string, code int) {
	m.errorsTotal.WithLabelValues(route, statusLabel(code)).Inc()
}

func (m *Metrics) IncRunsStarted() {
	m.runsStarted.Inc()
}

func (m *Metrics) IncRunsFinished() {
	m.runsFinished.Inc()
}

func (m *Metrics) IncSplits() {
	m.splitsTotal.Inc()
}

func (m *Metrics) IncPersonalBests() {
	m.personalBests.Inc()
}

func (m *Metrics) IncGoldSplits() {
	m.goldSplits.Inc()
}

// IncIgnored counts a trigger that had no effect. reason is e.g. "stray" or "dropped".
func (m *Metrics) IncIgnored(reason string) {
	m.ignoredEvents.WithLabelValues(reason).Inc()
}

// IncPersistFailures counts a failed write of the given record kind
// ("pb", "sum_of_best", "history").
func (m *Metrics) IncPersistFailures(record string) {
	m.persistFailures.WithLabelValues(record).Inc()
}

// SetCurrentSection sets the current section gauge; pass -1 when idle.
func (m *Metrics) SetCurrentSection(i int) {
	m.currentSection.Set(float64(i))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
