package fetcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics are optional; a nil *Metrics records nothing.
type Metrics struct {
	tasks    *prometheus.CounterVec
	attempts *prometheus.CounterVec
	rows     prometheus.Counter
	inFlight prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "klinearchive",
			Name:      "tasks_total",
			Help:      "Completed daily archive tasks by result.",
		}, []string{"result"}),
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "klinearchive",
			Name:      "attempts_total",
			Help:      "Archive download attempts by outcome.",
		}, []string{"outcome"}),
		rows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "klinearchive",
			Name:      "rows_total",
			Help:      "Kline rows collected from successful tasks.",
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "klinearchive",
			Name:      "tasks_in_flight",
			Help:      "Tasks currently held by a worker.",
		}),
	}
}

// ObserveAttempt matches archive.WithAttemptObserver.
func (m *Metrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) taskDone(result string, rows int) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(result).Inc()
	m.rows.Add(float64(rows))
}

func (m *Metrics) taskStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) taskFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}
