package stats

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's prometheus collectors. All methods are safe on a nil receiver so
// components can run without metrics in tests.
type Metrics struct {
	avlReports          *prometheus.CounterVec
	vehicleEvents       *prometheus.CounterVec
	predictableVehicles prometheus.Gauge
	predictions         prometheus.Counter
	sweepDuration       prometheus.Histogram
	autoAssignAttempts  *prometheus.CounterVec
	sinkDropped         *prometheus.CounterVec
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return collector, err
	}
	return collector, nil
}

// NewMetrics registers the collectors on reg, reusing any that are already registered.
// A nil registerer defaults to the global prometheus registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var err error
	m := &Metrics{}

	if m.avlReports, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "avlengine_avl_reports_total",
		Help: "AVL reports seen by the engine grouped by outcome",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if m.vehicleEvents, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "avlengine_vehicle_events_total",
		Help: "Vehicle events emitted grouped by type",
	}, []string{"type"})); err != nil {
		return nil, err
	}
	if m.predictableVehicles, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "avlengine_predictable_vehicles",
		Help: "Number of vehicles currently predictable",
	})); err != nil {
		return nil, err
	}
	if m.predictions, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "avlengine_predictions_generated_total",
		Help: "Number of stop predictions generated",
	})); err != nil {
		return nil, err
	}
	if m.sweepDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "avlengine_sweep_duration_seconds",
		Help:    "Time taken by the timeout sweeper",
		Buckets: prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if m.autoAssignAttempts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "avlengine_auto_assign_attempts_total",
		Help: "Auto block assignment attempts grouped by outcome",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if m.sinkDropped, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "avlengine_sink_dropped_total",
		Help: "Records dropped by the event sink",
	}, []string{"sink"})); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) AvlReport(result string) {
	if m == nil {
		return
	}
	m.avlReports.WithLabelValues(result).Inc()
}

func (m *Metrics) VehicleEvent(eventType string) {
	if m == nil {
		return
	}
	m.vehicleEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) PredictableDelta(delta float64) {
	if m == nil {
		return
	}
	m.predictableVehicles.Add(delta)
}

func (m *Metrics) PredictionsGenerated(count int) {
	if m == nil {
		return
	}
	m.predictions.Add(float64(count))
}

func (m *Metrics) SweepDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
}

func (m *Metrics) AutoAssignAttempt(result string) {
	if m == nil {
		return
	}
	m.autoAssignAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) SinkDropped(sink string) {
	if m == nil {
		return
	}
	m.sinkDropped.WithLabelValues(sink).Inc()
}

func (m *Metrics) SinkDroppedRecords(sink string, count int) {
	if m == nil {
		return
	}
	m.sinkDropped.WithLabelValues(sink).Add(float64(count))
}
