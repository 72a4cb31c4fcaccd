// Package metrics registers Prometheus instrumentation for the
// collection pipeline and exposes the scrape handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "transitwatch_"

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	cyclesTotal          *prometheus.CounterVec
	fetchErrorsTotal     prometheus.Counter
	observationsWritten  prometheus.Counter
	alertsCreatedTotal   *prometheus.CounterVec
	notificationsTotal   *prometheus.CounterVec
	openAlertsGauge      prometheus.Gauge
	lastCycleObservation prometheus.Gauge
)

// Init registers all pipeline metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		cyclesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cycles_total",
				Help: "Total collection cycles by result",
			},
			[]string{"result"},
		)
		fetchErrorsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "stop_fetch_errors_total",
				Help: "Total per-stop fetch failures (skipped stops)",
			},
		)
		observationsWritten = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "observations_written_total",
				Help: "Total arrival observations persisted",
			},
		)
		alertsCreatedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_created_total",
				Help: "Total alerts created by kind and severity",
			},
			[]string{"kind", "severity"},
		)
		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total notification dispatch attempts by result",
			},
			[]string{"result"},
		)
		openAlertsGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "open_alerts",
				Help: "Open (unresolved) alerts after the last sweep",
			},
		)
		lastCycleObservation = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "last_cycle_observations",
				Help: "Observations collected in the most recent cycle",
			},
		)

		prometheus.MustRegister(
			cyclesTotal,
			fetchErrorsTotal,
			observationsWritten,
			alertsCreatedTotal,
			notificationsTotal,
			openAlertsGauge,
			lastCycleObservation,
		)
	})
}

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CycleCompleted records a finished collection cycle.
func CycleCompleted(result string) {
	if cyclesTotal != nil {
		cyclesTotal.WithLabelValues(result).Inc()
	}
}

// StopFetchError records a skipped stop.
func StopFetchError() {
	if fetchErrorsTotal != nil {
		fetchErrorsTotal.Inc()
	}
}

// ObservationsPersisted records a successful batch write.
func ObservationsPersisted(n int) {
	if observationsWritten != nil {
		observationsWritten.Add(float64(n))
	}
	if lastCycleObservation != nil {
		lastCycleObservation.Set(float64(n))
	}
}

// AlertCreated records a newly raised alert.
func AlertCreated(kind, severity string) {
	if alertsCreatedTotal != nil {
		alertsCreatedTotal.WithLabelValues(kind, severity).Inc()
	}
}

// NotificationSent records a notification dispatch attempt.
func NotificationSent(result string) {
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(result).Inc()
	}
}

// SetOpenAlerts records the open alert count after a sweep.
func SetOpenAlerts(n int) {
	if openAlertsGauge != nil {
		openAlertsGauge.Set(float64(n))
	}
}
