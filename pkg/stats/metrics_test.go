package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.AvlReport("processed")
	m.AvlReport("processed")
	m.AvlReport("rejected")
	m.VehicleEvent("Timeout")
	m.PredictableDelta(1)
	m.PredictionsGenerated(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.avlReports.WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.avlReports.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.vehicleEvents.WithLabelValues("Timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.predictableVehicles))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.predictions))
}

func TestMetricsReuseRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	require.NoError(t, err)
	second, err := NewMetrics(reg)
	require.NoError(t, err)

	first.AvlReport("processed")
	assert.Equal(t, 1.0, testutil.ToFloat64(second.avlReports.WithLabelValues("processed")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AvlReport("processed")
		m.VehicleEvent("Timeout")
		m.SinkDropped("mongo")
	})
}
