package vehicletracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/events"
	"github.com/travigo/avlengine/pkg/realtime/prediction"
	"github.com/travigo/avlengine/pkg/realtime/vehiclestate"
	"github.com/travigo/avlengine/pkg/schedule"
	"github.com/travigo/avlengine/pkg/schedule/schedtest"
)

const departure = 8 * 3600

type fixture struct {
	t        *testing.T
	tracker  *Tracker
	recorder *events.Recorder
	graph    *schedule.Graph
}

func newFixture(t *testing.T, modify func(cfg *config.Config), options ...schedtest.Options) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Avl.NumThreads = 4
	if modify != nil {
		modify(cfg)
	}

	if len(options) == 0 {
		options = []schedtest.Options{{BlockID: "B1", FirstDepartureSecs: departure}}
	}
	graph := schedtest.Build(options...)
	recorder := events.NewRecorder()

	tracker, err := New(cfg, schedule.NewProvider(graph), recorder, prediction.NewMemoryErrorCache(), nil)
	require.NoError(t, err)

	return &fixture{t: t, tracker: tracker, recorder: recorder, graph: graph}
}

func (f *fixture) report(vehicleID string, tripID string, stopPathIndex int, distance float64, secs int) ctdf.AvlReport {
	return ctdf.AvlReport{
		VehicleID: vehicleID,
		Time:      schedtest.At(secs),
		Location:  schedtest.LocationOnTrip(f.graph, tripID, stopPathIndex, distance),
	}
}

func assigned(report ctdf.AvlReport, assignmentType ctdf.AssignmentType, assignmentID string) ctdf.AvlReport {
	report.AssignmentType = assignmentType
	report.AssignmentID = assignmentID
	return report
}

func (f *fixture) process(report ctdf.AvlReport) error {
	f.tracker.Now = func() time.Time { return report.Time }
	return f.tracker.Process(report)
}

func (f *fixture) mustProcess(reports ...ctdf.AvlReport) {
	f.t.Helper()
	for _, report := range reports {
		require.NoError(f.t, f.process(report))
	}
}

func (f *fixture) state(vehicleID string) vehiclestate.Snapshot {
	f.t.Helper()
	snapshot, err := f.tracker.CurrentState(vehicleID)
	require.NoError(f.t, err)
	return snapshot
}

func TestScenarioAutoAssignment(t *testing.T) {
	f := newFixture(t, nil,
		schedtest.Options{BlockID: "B1", FirstDepartureSecs: departure},
		schedtest.Options{BlockID: "B2", RouteID: "R2", North: 2000, FirstDepartureSecs: departure},
	)

	require.NoError(t, f.process(f.report("V1", "B1_trip0", 1, 150, departure+45)))
	assert.Equal(t, vehiclestate.StatusUnassigned, f.state("V1").Status)

	require.NoError(t, f.process(f.report("V1", "B1_trip0", 2, 150, departure+165)))

	state := f.state("V1")
	assert.Equal(t, vehiclestate.StatusPredictable, state.Status)
	assert.Equal(t, "B1", state.BlockID)
	assert.Equal(t, "B1_trip0", state.TripID)
	require.NotNil(t, state.Match)
	assert.Equal(t, 2, state.Match.StopPathIndex)

	assert.Len(t, f.recorder.EventsOfType(ctdf.VehicleEventPredictable, "V1"), 1)
	assert.NotEmpty(t, f.recorder.Matches())

	holder, held := f.tracker.Registry.BlockHolder("B1")
	require.True(t, held)
	assert.Equal(t, "V1", holder.VehicleID)

	predictions := f.tracker.Predictions("R1:S4")
	require.Len(t, predictions, 1)
	assert.Equal(t, "V1", predictions[0].VehicleID)
	assert.Equal(t, "B1_trip0", predictions[0].TripID)
	assert.NotEmpty(t, f.tracker.VehiclePredictions("V1"))
	assert.NotEmpty(t, f.recorder.Predictions())
}

func TestScenarioTimeout(t *testing.T) {
	f := newFixture(t, nil)

	f.mustProcess(assigned(f.report("V1", "B1_trip0", 1, 150, departure+45), ctdf.AssignmentTypeBlockID, "B1"))
	require.True(t, f.state("V1").Predictable)

	cfg := f.tracker.Config.Timeout
	f.tracker.Sweeper.HandlePossibleTimeouts(schedtest.At(departure + 45 + cfg.AllowableNoAvlSecs + 10))

	state := f.state("V1")
	assert.False(t, state.Predictable)
	assert.Len(t, f.recorder.EventsOfType(ctdf.VehicleEventTimeout, "V1"), 1)
	assert.Empty(t, f.tracker.VehiclePredictions("V1"))

	_, held := f.tracker.Registry.BlockHolder("B1")
	assert.False(t, held)
}

func TestTimeoutRemovalWhileReportWaits(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Timeout.RemoveTimedOutVehiclesFromVehicleDataCache = true
	})

	f.mustProcess(assigned(f.report("V1", "B1_trip0", 1, 150, departure+45), ctdf.AssignmentTypeBlockID, "B1"))
	removed, ok := f.tracker.Registry.Get("V1")
	require.True(t, ok)
	require.True(t, removed.IsPredictable())

	next := assigned(f.report("V1", "B1_trip0", 4, 150, departure+525), ctdf.AssignmentTypeBlockID, "B1")
	f.tracker.Now = func() time.Time { return next.Time }

	removed.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, f.tracker.Process(next))
	}()
	// let the worker block on the vehicle lock
	time.Sleep(50 * time.Millisecond)

	f.tracker.Manager.MakeUnpredictable(removed, ctdf.VehicleEventTimeout, "timed out", next.Time)
	f.tracker.Registry.RemoveLastReport("V1")
	f.tracker.Registry.Remove("V1")
	removed.Unlock()
	<-done

	assert.False(t, removed.IsPredictable())

	current, tracked := f.tracker.Registry.Get("V1")
	require.True(t, tracked)
	assert.NotSame(t, removed, current)
	require.NotNil(t, current.AvlReport)
	assert.Equal(t, next.Time, current.AvlReport.Time)

	lastReport, swept := f.tracker.Registry.LastReport("V1")
	require.True(t, swept)
	assert.Equal(t, next.Time, lastReport.Time)

	assert.Equal(t, current.IsPredictable(), len(f.tracker.VehiclePredictions("V1")) > 0)
	if holder, held := f.tracker.Registry.BlockHolder("B1"); held {
		assert.Equal(t, "V1", holder.VehicleID)
		assert.True(t, current.IsPredictable())
	}
}

func TestStopPathIndexNeverDecreases(t *testing.T) {
	f := newFixture(t, nil)

	positions := []struct {
		stopPathIndex int
		distance      float64
		secs          int
	}{
		{1, 150, departure + 45},
		{1, 350, departure + 105},
		{2, 20, departure + 126},
		// jittered back behind the previous fix
		{1, 385, departure + 140},
		{2, 200, departure + 180},
		{3, 100, departure + 270},
		{3, 90, departure + 290},
		{4, 300, departure + 450},
	}

	lastIndex := -1
	for _, position := range positions {
		f.mustProcess(assigned(f.report("V1", "B1_trip0", position.stopPathIndex, position.distance, position.secs), ctdf.AssignmentTypeBlockID, "B1"))

		state := f.state("V1")
		require.True(t, state.Predictable)
		require.NotNil(t, state.Match)
		assert.GreaterOrEqual(t, state.Match.StopPathIndex, lastIndex, "report at %d", position.secs)
		lastIndex = state.Match.StopPathIndex
	}
	assert.Equal(t, 4, lastIndex)
}

func TestScenarioAssignmentGrab(t *testing.T) {
	f := newFixture(t, nil)

	f.mustProcess(assigned(f.report("V1", "B1_trip0", 1, 150, departure+45), ctdf.AssignmentTypeBlockID, "B1"))
	require.True(t, f.state("V1").Predictable)

	f.mustProcess(assigned(f.report("V2", "B1_trip0", 2, 150, departure+165), ctdf.AssignmentTypeBlockID, "B1"))

	assert.True(t, f.state("V2").Predictable)
	assert.Equal(t, "B1", f.state("V2").BlockID)

	displaced := f.state("V1")
	assert.False(t, displaced.Predictable)
	assert.Equal(t, vehiclestate.StatusUnassigned, displaced.Status)
	assert.Empty(t, displaced.AssignmentID)

	grabbed := f.recorder.EventsOfType(ctdf.VehicleEventAssignmentGrabbed, "V1")
	require.Len(t, grabbed, 1)
	assert.Contains(t, grabbed[0].Description, "V2")

	holder, _ := f.tracker.Registry.BlockHolder("B1")
	assert.Equal(t, "V2", holder.VehicleID)
	assert.Empty(t, f.tracker.VehiclePredictions("V1"))
}

func TestAssignmentGrabRefusedWhenTooFar(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Core.MaxDistanceForAssignmentGrab = 100
	})

	f.mustProcess(assigned(f.report("V1", "B1_trip0", 1, 150, departure+45), ctdf.AssignmentTypeBlockID, "B1"))

	far := ctdf.AvlReport{
		VehicleID:      "V2",
		Time:           schedtest.At(departure + 60),
		Location:       schedtest.Offset(schedtest.Origin, 800, 3000),
		AssignmentID:   "B1",
		AssignmentType: ctdf.AssignmentTypeBlockID,
	}
	f.mustProcess(far)

	assert.False(t, f.state("V2").Predictable)
	assert.Len(t, f.recorder.EventsOfType(ctdf.VehicleEventAvlConflict, "V2"), 1)
	assert.True(t, f.state("V1").Predictable)
	assert.Empty(t, f.recorder.EventsOfType(ctdf.VehicleEventAssignmentGrabbed, "V1"))
}

func TestNonExclusiveAssignmentsShareBlock(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Core.ExclusiveBlockAssignments = false
	})

	f.mustProcess(
		assigned(f.report("V1", "B1_trip0", 1, 150, departure+45), ctdf.AssignmentTypeBlockID, "B1"),
		assigned(f.report("V2", "B1_trip0", 2, 150, departure+165), ctdf.AssignmentTypeBlockID, "B1"),
	)

	assert.True(t, f.state("V1").Predictable)
	assert.True(t, f.state("V2").Predictable)
	assert.Empty(t, f.recorder.EventsOfType(ctdf.VehicleEventAssignmentGrabbed, "V1"))
}

func TestTripAndRouteAssignments(t *testing.T) {
	f := newFixture(t, nil)

	f.mustProcess(assigned(f.report("V1", "B1_trip0", 1, 150, departure+45), ctdf.AssignmentTypeTripID, "B1_trip0"))
	assert.Equal(t, "B1", f.state("V1").BlockID)

	g := newFixture(t, nil)
	g.mustProcess(assigned(g.report("V1", "B1_trip0", 1, 150, departure+45), ctdf.AssignmentTypeRouteID, "R1"))
	assert.Equal(t, "B1", g.state("V1").BlockID)
}

func TestAssignmentChangedEvent(t *testing.T) {
	f := newFixture(t, nil,
		schedtest.Options{BlockID: "B1", FirstDepartureSecs: departure},
		schedtest.Options{BlockID: "B2", RouteID: "R2", North: 2000, FirstDepartureSecs: departure},
	)

	f.mustProcess(assigned(f.report("V1", "B1_trip0", 1, 150, departure+45), ctdf.AssignmentTypeBlockID, "B1"))
	f.mustProcess(assigned(f.report("V1", "B2_trip0", 1, 150, departure+165), ctdf.AssignmentTypeBlockID, "B2"))

	assert.Len(t, f.recorder.EventsOfType(ctdf.VehicleEventAssignmentChanged, "V1"), 1)
	assert.Equal(t, "B2", f.state("V1").BlockID)

	_, held := f.tracker.Registry.BlockHolder("B1")
	assert.False(t, held)
}

func TestUnknownAssignmentFallsBackToAutoAssign(t *testing.T) {
	f := newFixture(t, nil)

	f.mustProcess(
		assigned(f.report("V1", "B1_trip0", 1, 150, departure+45), ctdf.AssignmentTypeBlockID, "nope"),
		assigned(f.report("V1", "B1_trip0", 2, 150, departure+165), ctdf.AssignmentTypeBlockID, "nope"),
	)

	assert.Equal(t, "B1", f.state("V1").BlockID)
}

func TestFilteredAssignmentIgnored(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Avl.UnpredictableAssignmentsExpr = `assignment startsWith "B"`
		cfg.AutoAssigner.Enabled = false
	})

	f.mustProcess(assigned(f.report("V1", "B1_trip0", 1, 150, departure+45), ctdf.AssignmentTypeBlockID, "B1"))

	assert.False(t, f.state("V1").Predictable)
}

func TestIgnoreAvlAssignments(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.AutoAssigner.IgnoreAvlAssignments = true
	})

	f.mustProcess(assigned(f.report("V1", "B1_trip0", 1, 150, departure+45), ctdf.AssignmentTypeBlockID, "B1"))
	assert.False(t, f.state("V1").Predictable)

	f.mustProcess(assigned(f.report("V1", "B1_trip0", 2, 150, departure+165), ctdf.AssignmentTypeBlockID, "B1"))
	assert.True(t, f.state("V1").Predictable)
}

func TestReportFilters(t *testing.T) {
	f := newFixture(t, nil)

	first := assigned(f.report("V1", "B1_trip0", 1, 150, departure+45), ctdf.AssignmentTypeBlockID, "B1")
	f.mustProcess(first)

	// duplicate
	f.mustProcess(first)
	// too soon after the previous report
	f.mustProcess(assigned(f.report("V1", "B1_trip0", 1, 160, departure+47), ctdf.AssignmentTypeBlockID, "B1"))
	// implausibly fast
	f.mustProcess(assigned(f.report("V1", "B1_trip0", 5, 150, departure+60), ctdf.AssignmentTypeBlockID, "B1"))

	state, ok := f.tracker.Registry.Get("V1")
	require.True(t, ok)
	assert.Equal(t, 1, state.AvlHistory.Len())
	assert.Equal(t, first.Time, f.state("V1").AvlReport.Time)
}

func TestNoMatchesMakeUnpredictable(t *testing.T) {
	f := newFixture(t, nil)

	f.mustProcess(assigned(f.report("V1", "B1_trip0", 1, 150, departure+45), ctdf.AssignmentTypeBlockID, "B1"))

	allowed := f.tracker.Config.Core.AllowableNumberOfBadMatches
	for i := 0; i <= allowed; i++ {
		offRoute := ctdf.AvlReport{
			VehicleID: "V1",
			Time:      schedtest.At(departure + 45 + (i+1)*60),
			Location:  schedtest.Offset(schedtest.Origin, 550, 400),
		}
		f.mustProcess(offRoute)

		if i < allowed {
			assert.True(t, f.state("V1").Predictable)
		}
	}

	assert.False(t, f.state("V1").Predictable)
	assert.Len(t, f.recorder.EventsOfType(ctdf.VehicleEventNoMatch, "V1"), 1)
}

func TestEndOfBlock(t *testing.T) {
	f := newFixture(t, nil)

	f.mustProcess(
		assigned(f.report("V1", "B1_trip0", 1, 150, departure+45), ctdf.AssignmentTypeBlockID, "B1"),
		assigned(f.report("V1", "B1_trip0", 5, 395, departure+600), ctdf.AssignmentTypeBlockID, "B1"),
	)

	state := f.state("V1")
	assert.False(t, state.Predictable)
	assert.Equal(t, vehiclestate.StatusUnassigned, state.Status)
	assert.Len(t, f.recorder.EventsOfType(ctdf.VehicleEventEndOfBlock, "V1"), 1)
	assert.Empty(t, f.tracker.VehiclePredictions("V1"))
}

func TestArrivalsAndDeparturesDetermined(t *testing.T) {
	f := newFixture(t, nil)

	f.mustProcess(
		assigned(f.report("V1", "B1_trip0", 2, 150, departure+165), ctdf.AssignmentTypeBlockID, "B1"),
		assigned(f.report("V1", "B1_trip0", 3, 150, departure+285), ctdf.AssignmentTypeBlockID, "B1"),
	)

	arrivalDepartures := f.recorder.ArrivalDepartures()
	require.Len(t, arrivalDepartures, 2)

	arrival, departed := arrivalDepartures[0], arrivalDepartures[1]
	assert.Equal(t, ctdf.ArrivalDepartureKindArrival, arrival.Kind)
	assert.Equal(t, ctdf.ArrivalDepartureKindDeparture, departed.Kind)

	for _, arrivalDeparture := range arrivalDepartures {
		assert.Equal(t, "R1:S2", arrivalDeparture.StopID)
		assert.Equal(t, 2, arrivalDeparture.StopPathIndex)
		assert.Equal(t, "B1_trip0", arrivalDeparture.TripID)
		assert.Equal(t, schedtest.At(departure+240), arrivalDeparture.ScheduledTime)
		assert.InDelta(t, float64(departure+240), arrivalDeparture.Time.Sub(schedtest.Day).Seconds(), 2)
	}
}

func TestValidationRejectsReport(t *testing.T) {
	f := newFixture(t, nil)

	report := f.report("V1", "B1_trip0", 1, 150, departure+45)
	report.Location = ctdf.NewLocation(95, 0)

	err := f.process(report)
	var validationError *ValidationError
	require.ErrorAs(t, err, &validationError)
	assert.Equal(t, "V1", validationError.VehicleID)

	_, tracked := f.tracker.Registry.Get("V1")
	assert.False(t, tracked)
}

func TestSchedBasedVehicleReplacedByRealVehicle(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Timeout.SchedBasedEnabled = true
	})

	f.tracker.Now = func() time.Time { return schedtest.At(departure - 30*60) }
	created := f.tracker.SchedBased.Generate(schedtest.At(departure - 30*60))
	schedID := SchedBasedVehicleID("B1")
	require.Equal(t, []string{schedID}, created)

	state := f.state(schedID)
	assert.True(t, state.Predictable)
	assert.True(t, state.ForSchedBasedPreds)

	predictions := f.tracker.VehiclePredictions(schedID)
	require.NotEmpty(t, predictions)
	for _, prediction := range predictions {
		assert.True(t, prediction.SchedBasedPrediction)
	}

	// already held, nothing new
	assert.Empty(t, f.tracker.SchedBased.Generate(schedtest.At(departure-25*60)))

	f.mustProcess(assigned(f.report("V1", "B1_trip0", 1, 150, departure+45), ctdf.AssignmentTypeBlockID, "B1"))

	assert.True(t, f.state("V1").Predictable)
	_, tracked := f.tracker.Registry.Get(schedID)
	assert.False(t, tracked)
	assert.Empty(t, f.tracker.VehiclePredictions(schedID))
	assert.Len(t, f.recorder.EventsOfType(ctdf.VehicleEventAssignmentGrabbed, schedID), 1)
}

func TestSchedBasedNotCreatedAfterStart(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Timeout.SchedBasedEnabled = true
	})

	f.tracker.Now = func() time.Time { return schedtest.At(departure + 9*60) }
	assert.Empty(t, f.tracker.SchedBased.Generate(schedtest.At(departure+9*60)))

	f.tracker.Config.Timeout.AfterStartTimeMinutes = -1
	assert.Len(t, f.tracker.SchedBased.Generate(schedtest.At(departure+9*60)), 1)
}

func TestSchedBasedCanceledPredictions(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Timeout.SchedBasedEnabled = true
	})
	f.tracker.Sweeper.Resubmit = func(report ctdf.AvlReport) {
		f.tracker.process(job{report: report, resubmitted: true})
	}

	f.tracker.Now = func() time.Time { return schedtest.At(departure - 30*60) }
	f.tracker.SchedBased.Generate(schedtest.At(departure - 30*60))
	schedID := SchedBasedVehicleID("B1")

	f.tracker.Now = func() time.Time { return schedtest.At(departure + 9*60) }
	f.tracker.Sweeper.HandlePossibleTimeouts(schedtest.At(departure + 9*60))

	state := f.state(schedID)
	assert.True(t, state.Canceled)
	assert.True(t, state.Predictable)

	predictions := f.tracker.VehiclePredictions(schedID)
	require.NotEmpty(t, predictions)
	for _, prediction := range predictions {
		assert.True(t, prediction.Canceled)
	}
}

func TestAutoAssignUnassigned(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.AutoAssigner.MinTimeBetweenAutoAssigningSecs = 100
	})

	f.mustProcess(f.report("V1", "B1_trip0", 1, 150, departure+45))
	// rate limited on the report itself
	f.mustProcess(f.report("V1", "B1_trip0", 2, 100, departure+100))
	require.False(t, f.state("V1").Predictable)

	f.tracker.AutoAssignUnassigned(schedtest.At(departure + 100 + 361))
	assert.False(t, f.state("V1").Predictable, "latest report too old")

	f.tracker.AutoAssignUnassigned(schedtest.At(departure + 150))
	state := f.state("V1")
	assert.True(t, state.Predictable)
	assert.Equal(t, "B1", state.BlockID)

	// the report already had its attempt
	g := newFixture(t, nil)
	g.mustProcess(g.report("V1", "B1_trip0", 1, 150, departure+45))
	g.tracker.AutoAssignUnassigned(schedtest.At(departure + 100))
	registered, ok := g.tracker.Registry.Get("V1")
	require.True(t, ok)
	assert.Equal(t, schedtest.At(departure+45), registered.LastAutoAssignAttempt)
}

func TestSubmitRoutesToWorkers(t *testing.T) {
	f := newFixture(t, nil)
	clock := schedtest.At(departure + 165)
	f.tracker.Now = func() time.Time { return clock }

	ctx, cancel := context.WithCancel(context.Background())
	f.tracker.Start(ctx)

	require.NoError(t, f.tracker.Submit(assigned(f.report("V1", "B1_trip0", 2, 150, departure+165), ctdf.AssignmentTypeBlockID, "B1")))

	assert.Eventually(t, func() bool {
		snapshot, err := f.tracker.CurrentState("V1")
		return err == nil && snapshot.Predictable
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	f.tracker.Wait()
}

func TestSubmitQueueFull(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Avl.NumThreads = 1
		cfg.Avl.QueueSize = 1
	})
	f.tracker.Now = func() time.Time { return schedtest.At(departure + 60) }

	require.NoError(t, f.tracker.Submit(f.report("V1", "B1_trip0", 1, 150, departure+45)))
	assert.ErrorIs(t, f.tracker.Submit(f.report("V1", "B1_trip0", 1, 200, departure+55)), ErrQueueFull)
}

func TestWorkerForIsStable(t *testing.T) {
	f := newFixture(t, nil)

	for _, vehicleID := range []string{"V1", "V2", "bus-17", ""} {
		worker := f.tracker.workerFor(vehicleID)
		assert.GreaterOrEqual(t, worker, 0)
		assert.Less(t, worker, f.tracker.Config.Avl.NumThreads)
		assert.Equal(t, worker, f.tracker.workerFor(vehicleID))
	}
}

func TestReplay(t *testing.T) {
	f := newFixture(t, nil)

	summary := f.tracker.Replay([]ctdf.AvlReport{
		f.report("V1", "B1_trip0", 1, 150, departure+45),
		f.report("V1", "B1_trip0", 2, 150, departure+165),
		f.report("V1", "B1_trip0", 3, 150, departure+285),
		{VehicleID: "V2", Time: schedtest.At(departure + 290)},
	})

	assert.Equal(t, 4, summary.Reports)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 2, summary.Vehicles)
	assert.True(t, f.state("V1").Predictable)
	assert.Len(t, f.recorder.ArrivalDepartures(), 2)
}
