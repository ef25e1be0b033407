package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

// WorkerMetrics records poll loop measurements. It satisfies
// usecase.PollObserver.
type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	pollErrors      *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expense",
			Subsystem: "worker",
			Name:      "job_process_total",
			Help:      "Total processing job runs by resulting status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "expense",
			Subsystem: "worker",
			Name:      "job_process_duration_seconds",
			Help:      "Processing job run duration in seconds by resulting status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "expense",
			Subsystem: "worker",
			Name:      "job_process_in_flight",
			Help:      "Number of in-flight processing job runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "expense",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between job creation and the start of a processing run.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	pollErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expense",
			Subsystem: "worker",
			Name:      "poll_errors_total",
			Help:      "Poll cycles skipped because pending jobs could not be listed.",
		},
		[]string{"service"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, pollErrors)

	return &WorkerMetrics{
		service:         service,
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		pollErrors:      pollErrors,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob() {
	m.processInFlight.Inc()
}

// FinishJob labels the run by the status the job ended in. A run that was
// skipped because another poller held the job has an empty status.
func (m *WorkerMetrics) FinishJob(status domain.ProcessingStatus, duration time.Duration, err error) {
	m.processInFlight.Dec()

	label := string(status)
	switch {
	case err != nil:
		label = "error"
	case label == "":
		label = "skipped"
	}

	m.processTotal.WithLabelValues(m.service, label).Inc()
	m.processDuration.WithLabelValues(m.service, label).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) PollFailed() {
	m.pollErrors.WithLabelValues(m.service).Inc()
}
