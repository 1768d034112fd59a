package metrics

import (
	"DualSignal/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	barsReceived    *prometheus.CounterVec
	barsDropped     *prometheus.CounterVec
	windowsFlushed  *prometheus.CounterVec
	reconnects      prometheus.Counter
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	observations    prometheus.Counter
	learningState   *prometheus.GaugeVec
	learningSkipped *prometheus.CounterVec
}

// New registers the recorder on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the recorder on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		barsReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dualsignal_bars_received_total",
				Help: "Bars accepted from the feed",
			},
			[]string{"instrument"},
		),
		barsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dualsignal_bars_dropped_total",
				Help: "Bars dropped before aggregation",
			},
			[]string{"reason"},
		),
		windowsFlushed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dualsignal_windows_flushed_total",
				Help: "Closed windows written to object storage",
			},
			[]string{"instrument"},
		),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "dualsignal_feed_reconnects_total",
			Help: "Feed reconnect attempts",
		}),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dualsignal_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dualsignal_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		observations: f.NewCounter(prometheus.CounterOpts{
			Name: "dualsignal_compute_observations_total",
			Help: "Observations appended to the daily compute series",
		}),
		learningState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dualsignal_learning_converged",
				Help: "1 when the instrument's model has converged today",
			},
			[]string{"instrument"},
		),
		learningSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dualsignal_learning_skipped_total",
				Help: "Instruments skipped by the learning worker",
			},
			[]string{"reason"},
		),
	}
}

func (r *Recorder) RecordBarReceived(instrument string) {
	r.barsReceived.WithLabelValues(instrument).Inc()
}

func (r *Recorder) RecordBarDropped(reason string) {
	r.barsDropped.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordWindowFlushed(instrument string) {
	r.windowsFlushed.WithLabelValues(instrument).Inc()
}

func (r *Recorder) RecordReconnect() {
	r.reconnects.Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordObservations(n int) {
	r.observations.Add(float64(n))
}

func (r *Recorder) RecordLearningResult(instrument string, state models.ConvergenceState) {
	v := 0.0
	if state == models.StateConverged {
		v = 1
	}
	r.learningState.WithLabelValues(instrument).Set(v)
}

func (r *Recorder) RecordLearningSkipped(reason string) {
	r.learningSkipped.WithLabelValues(reason).Inc()
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordBarReceived(string)                             {}
func (Nop) RecordBarDropped(string)                              {}
func (Nop) RecordWindowFlushed(string)                           {}
func (Nop) RecordReconnect()                                     {}
func (Nop) RecordError(string)                                   {}
func (Nop) RecordLatency(string, float64)                        {}
func (Nop) RecordObservations(int)                               {}
func (Nop) RecordLearningResult(string, models.ConvergenceState) {}
func (Nop) RecordLearningSkipped(string)                         {}
