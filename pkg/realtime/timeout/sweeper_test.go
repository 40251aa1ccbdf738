package timeout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/events"
	"github.com/travigo/avlengine/pkg/realtime/vehiclestate"
	"github.com/travigo/avlengine/pkg/schedule"
	"github.com/travigo/avlengine/pkg/schedule/schedtest"
)

const departure = 8 * 3600

type fixture struct {
	cfg      *config.Config
	graph    *schedule.Graph
	recorder *events.Recorder
	registry *vehiclestate.Registry
	manager  *vehiclestate.Manager
	sweeper  *Sweeper

	resubmitted []ctdf.AvlReport
}

func newFixture(t *testing.T, modify func(cfg *config.Config)) *fixture {
	t.Helper()

	cfg := config.Default()
	if modify != nil {
		modify(cfg)
	}

	f := &fixture{
		cfg:      cfg,
		graph:    schedtest.Build(schedtest.Options{FirstDepartureSecs: departure}),
		recorder: events.NewRecorder(),
		registry: vehiclestate.NewRegistry(cfg.Core),
	}
	f.manager = vehiclestate.NewManager(cfg, f.registry, schedule.NewProvider(f.graph), f.recorder, nil)
	f.sweeper = NewSweeper(cfg, f.manager, nil)
	f.sweeper.Resubmit = func(report ctdf.AvlReport) {
		f.resubmitted = append(f.resubmitted, report)
	}
	return f
}

// track creates a vehicle reporting at secs, matched at the given position when stopPathIndex >= 0
func (f *fixture) track(vehicleID string, secs int, stopPathIndex int, distance float64, atStop bool) *vehiclestate.VehicleRuntimeState {
	state := f.registry.GetOrCreate(vehicleID)
	report := &ctdf.AvlReport{VehicleID: vehicleID, Time: schedtest.At(secs), Location: schedtest.Origin}

	state.Lock()
	defer state.Unlock()

	state.RecordAvlReport(report)
	f.registry.SetLastReport(*report)

	if stopPathIndex >= 0 {
		match := &ctdf.TemporalMatch{
			BlockID:               "B1",
			TripID:                "B1_trip0",
			Indices:               ctdf.Indices{StopPathIndex: stopPathIndex},
			DistanceAlongStopPath: distance,
			AtStop:                atStop,
			AtStopPathIndex:       stopPathIndex,
			AvlTime:               report.Time,
		}
		f.manager.ApplyMatch(state, match, f.graph.Block("B1"), f.graph.Trip("B1_trip0"), schedtest.Day, report.Time)
	}
	return state
}

func (f *fixture) inSweep(vehicleID string) bool {
	_, ok := f.registry.LastReport(vehicleID)
	return ok
}

func TestPredictableVehicleTimesOut(t *testing.T) {
	f := newFixture(t, nil)
	state := f.track("V1", departure+60, 2, 100, false)

	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure + 60 + 300))
	assert.True(t, state.IsPredictable())
	assert.True(t, f.inSweep("V1"))

	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure + 60 + 361))
	assert.False(t, state.IsPredictable())
	assert.False(t, f.inSweep("V1"))

	timeouts := f.recorder.EventsOfType(ctdf.VehicleEventTimeout, "V1")
	require.Len(t, timeouts, 1)
	assert.True(t, timeouts[0].BecameUnpredictable)

	_, kept := f.registry.Get("V1")
	assert.True(t, kept, "state kept unless configured to remove")
}

func TestTimedOutVehicleRemovedWhenConfigured(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Timeout.RemoveTimedOutVehiclesFromVehicleDataCache = true
	})
	f.track("V1", departure+60, 2, 100, false)

	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure + 60 + 361))
	_, kept := f.registry.Get("V1")
	assert.False(t, kept)
}

func TestNotPredictableDroppedFromSweep(t *testing.T) {
	f := newFixture(t, nil)
	f.track("V1", departure, -1, 0, false)

	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure + 1))
	assert.False(t, f.inSweep("V1"))
	assert.Empty(t, f.recorder.Events())
}

func TestNotPredictableKeptUntilTimeoutWhenRemoving(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Timeout.RemoveTimedOutVehiclesFromVehicleDataCache = true
	})
	f.track("V1", departure, -1, 0, false)

	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure + 100))
	assert.True(t, f.inSweep("V1"))

	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure + 361))
	assert.False(t, f.inSweep("V1"))
	_, kept := f.registry.Get("V1")
	assert.False(t, kept)
	assert.Empty(t, f.recorder.Events())
}

func TestWaitStopUsesScheduledDeparture(t *testing.T) {
	f := newFixture(t, nil)
	// at the first stop well ahead of its departure
	state := f.track("V1", departure-1200, 0, 20, true)

	// silent for longer than allowed but still before departure
	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure - 600))
	assert.True(t, state.IsPredictable())

	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure + 300))
	assert.True(t, state.IsPredictable())

	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure + 361))
	assert.False(t, state.IsPredictable())
	assert.Len(t, f.recorder.EventsOfType(ctdf.VehicleEventTimeout, "V1"), 1)
}

func TestFrequencyBasedWaitStopExempt(t *testing.T) {
	f := newFixture(t, nil)
	f.graph.Trip("B1_trip0").NoSchedule = true
	state := f.track("V1", departure-1200, 0, 20, true)

	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure + 7200))
	assert.True(t, state.IsPredictable())
}

func schedBased(f *fixture, vehicleID string) *vehiclestate.VehicleRuntimeState {
	state := f.track(vehicleID, departure-1800, 0, 20, true)
	state.Lock()
	state.ForSchedBasedPreds = true
	state.Unlock()
	return state
}

func TestSchedBasedCanceledAndResubmittedOnce(t *testing.T) {
	f := newFixture(t, nil)
	state := schedBased(f, "sched_B1")

	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure + 5*60))
	assert.Empty(t, f.resubmitted)

	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure + 9*60))
	require.Len(t, f.resubmitted, 1)
	assert.Equal(t, "sched_B1", f.resubmitted[0].VehicleID)
	assert.True(t, state.Canceled)
	assert.True(t, state.IsPredictable())

	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure + 10*60))
	assert.Len(t, f.resubmitted, 1)
}

func TestSchedBasedRemovedWithoutCancel(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Timeout.CancelTripOnTimeout = false
	})
	state := schedBased(f, "sched_B1")

	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure + 9*60))
	assert.False(t, state.IsPredictable())
	assert.Empty(t, f.resubmitted)
	assert.Len(t, f.recorder.EventsOfType(ctdf.VehicleEventTimeout, "sched_B1"), 1)
}

func TestSchedBasedTimesOutWhenBlockOver(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Timeout.AfterStartTimeMinutes = -1
	})
	state := schedBased(f, "sched_B1")

	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure + 9*60))
	assert.True(t, state.IsPredictable())

	// the block ends ten minutes after departure
	f.sweeper.HandlePossibleTimeouts(schedtest.At(departure + 3600))
	assert.False(t, state.IsPredictable())
}

func TestRunStopsWithContext(t *testing.T) {
	f := newFixture(t, nil)
	f.cfg.Timeout.PollingRateSecs = 1

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sweeper.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
