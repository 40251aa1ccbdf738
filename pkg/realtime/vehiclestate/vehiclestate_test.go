package vehiclestate

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/events"
	"github.com/travigo/avlengine/pkg/schedule"
	"github.com/travigo/avlengine/pkg/schedule/schedtest"
)

const departure = 8 * 3600

func TestRingBufferEvictsOldest(t *testing.T) {
	buffer := NewRingBuffer[int](3)
	for i := 1; i <= 5; i++ {
		buffer.Push(i)
	}

	assert.Equal(t, 3, buffer.Len())
	assert.Equal(t, []int{3, 4, 5}, buffer.Items())

	last, ok := buffer.Last()
	require.True(t, ok)
	assert.Equal(t, 5, last)

	buffer.Clear()
	_, ok = buffer.Last()
	assert.False(t, ok)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	registry := NewRegistry(config.Default().Core)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vehicleID := fmt.Sprintf("V%d", i%5)
			registry.GetOrCreate(vehicleID)
			registry.SetLastReport(ctdf.AvlReport{VehicleID: vehicleID})
			for _, report := range registry.LastReports() {
				if report.VehicleID == "V0" {
					registry.RemoveLastReport(report.VehicleID)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, registry.VehicleIDs(), 5)
	assert.Same(t, registry.GetOrCreate("V1"), registry.GetOrCreate("V1"))
}

func TestRegistryBlockHolder(t *testing.T) {
	registry := NewRegistry(config.Default().Core)

	assert.Equal(t, "", registry.AssignBlock("B1", "V1", true))
	assert.Equal(t, "", registry.AssignBlock("B1", "V1", true))
	assert.Equal(t, "V1", registry.AssignBlock("B1", "V2", false))

	registry.ReleaseBlock("B1", "V1")
	holder, ok := registry.BlockHolder("B1")
	require.True(t, ok)
	assert.Equal(t, BlockHolder{VehicleID: "V2"}, holder)

	registry.Remove("V2")
	_, ok = registry.BlockHolder("B1")
	assert.False(t, ok)
}

func TestRegistryLockSkipsRemovedState(t *testing.T) {
	registry := NewRegistry(config.Default().Core)

	removed := registry.GetOrCreate("V1")
	removed.Lock()

	locked := make(chan *VehicleRuntimeState)
	go func() {
		state := registry.Lock("V1")
		state.Unlock()
		locked <- state
	}()
	time.Sleep(20 * time.Millisecond)

	registry.Remove("V1")
	removed.Unlock()

	state := <-locked
	assert.NotSame(t, removed, state)
	current, ok := registry.Get("V1")
	require.True(t, ok)
	assert.Same(t, current, state)
	assert.False(t, registry.Registered(removed))
	assert.True(t, registry.Registered(state))
}

func TestRegistryLockExisting(t *testing.T) {
	registry := NewRegistry(config.Default().Core)

	_, ok := registry.LockExisting("V1")
	assert.False(t, ok)

	removed := registry.GetOrCreate("V1")
	removed.Lock()

	result := make(chan bool)
	go func() {
		state, ok := registry.LockExisting("V1")
		if ok {
			state.Unlock()
		}
		result <- ok
	}()
	time.Sleep(20 * time.Millisecond)

	registry.Remove("V1")
	removed.Unlock()

	assert.False(t, <-result)
	_, tracked := registry.Get("V1")
	assert.False(t, tracked)
}

type fixture struct {
	manager  *Manager
	recorder *events.Recorder
	graph    *schedule.Graph
	state    *VehicleRuntimeState
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	graph := schedtest.Build(schedtest.Options{FirstDepartureSecs: departure})
	recorder := events.NewRecorder()
	registry := NewRegistry(config.Default().Core)
	manager := NewManager(config.Default(), registry, schedule.NewProvider(graph), recorder, nil)

	return &fixture{
		manager:  manager,
		recorder: recorder,
		graph:    graph,
		state:    registry.GetOrCreate("V1"),
	}
}

// apply reports and matches the vehicle secs into the day at a position on the first trip
func (f *fixture) apply(secs int, stopPathIndex int, distance float64) {
	report := &ctdf.AvlReport{
		VehicleID: "V1",
		Time:      schedtest.At(secs),
		Location:  schedtest.LocationOnTrip(f.graph, "B1_trip0", stopPathIndex, distance),
	}
	f.state.RecordAvlReport(report)

	stopPath := f.graph.StopPathsFor("B1_trip0")[stopPathIndex]
	match := &ctdf.TemporalMatch{
		BlockID:               "B1",
		TripID:                "B1_trip0",
		Indices:               ctdf.Indices{StopPathIndex: stopPathIndex},
		StopPathID:            stopPath.ID,
		DistanceAlongStopPath: distance,
		AvlTime:               report.Time,
	}
	f.manager.ApplyMatch(f.state, match, f.graph.Block("B1"), f.graph.Trip("B1_trip0"), schedtest.Day, report.Time)
}

func TestApplyMatchBecomesPredictable(t *testing.T) {
	f := newFixture(t)

	f.apply(departure+60, 1, 100)
	f.apply(departure+90, 1, 200)

	assert.True(t, f.state.IsPredictable())
	assert.Equal(t, 2, f.state.MatchHistory.Len())

	predictable := f.recorder.EventsOfType(ctdf.VehicleEventPredictable, "V1")
	require.Len(t, predictable, 1)
	assert.True(t, predictable[0].BecamePredictable)
	assert.Equal(t, "B1", predictable[0].BlockID)
	assert.Equal(t, "R1", predictable[0].RouteID)
	assert.Len(t, f.recorder.Matches(), 2)

	holder, _ := f.manager.Registry.BlockHolder("B1")
	assert.Equal(t, "V1", holder.VehicleID)
}

func TestBadMatchesMakeUnpredictableOnceExceeded(t *testing.T) {
	f := newFixture(t)
	f.apply(departure+60, 1, 100)

	now := schedtest.At(departure + 120)
	assert.False(t, f.manager.ApplyNoMatch(f.state, now))
	assert.False(t, f.manager.ApplyNoMatch(f.state, now))
	assert.True(t, f.state.IsPredictable())

	assert.True(t, f.manager.ApplyNoMatch(f.state, now))
	assert.Equal(t, StatusUnpredictable, f.state.Status)
	assert.Nil(t, f.state.Match)

	noMatch := f.recorder.EventsOfType(ctdf.VehicleEventNoMatch, "V1")
	require.Len(t, noMatch, 1)
	assert.True(t, noMatch[0].BecameUnpredictable)
	assert.False(t, noMatch[0].Predictable)
	assert.Equal(t, "B1_trip0", noMatch[0].TripID)

	_, held := f.manager.Registry.BlockHolder("B1")
	assert.False(t, held)

	// already unpredictable, nothing more happens
	assert.False(t, f.manager.ApplyNoMatch(f.state, now))
	assert.Len(t, f.recorder.EventsOfType(ctdf.VehicleEventNoMatch, "V1"), 1)
}

func TestNoProgress(t *testing.T) {
	f := newFixture(t)

	var unpredictable []string
	f.manager.OnUnpredictable = func(vehicleID string) {
		unpredictable = append(unpredictable, vehicleID)
	}

	f.apply(departure+60, 2, 100)
	f.apply(departure+300, 2, 120)
	assert.False(t, f.manager.CheckNoProgress(f.state, schedtest.At(departure+300)), "window not yet covered")

	f.apply(departure+560, 2, 130)
	assert.True(t, f.manager.CheckNoProgress(f.state, schedtest.At(departure+560)))
	assert.Len(t, f.recorder.EventsOfType(ctdf.VehicleEventNoProgress, "V1"), 1)
	assert.Equal(t, []string{"V1"}, unpredictable)
}

func TestProgressKeepsPredictable(t *testing.T) {
	f := newFixture(t)

	f.apply(departure+60, 1, 100)
	f.apply(departure+560, 3, 100)
	assert.False(t, f.manager.CheckNoProgress(f.state, schedtest.At(departure+560)))
	assert.True(t, f.state.IsPredictable())
}

func TestNoProgressIgnoredAtLayover(t *testing.T) {
	f := newFixture(t)

	f.apply(departure-600, 0, 20)
	f.state.Match.AtStop = true
	f.state.Match.AtStopPathIndex = 0
	f.apply(departure-10, 0, 20)
	f.state.Match.AtStop = true
	f.state.Match.AtStopPathIndex = 0

	assert.False(t, f.manager.CheckNoProgress(f.state, schedtest.At(departure-10)))
}

func TestDelayedFlag(t *testing.T) {
	f := newFixture(t)

	f.apply(departure+60, 2, 100)
	f.apply(departure+310, 2, 110)

	assert.True(t, f.manager.CheckDelayed(f.state, schedtest.At(departure+310)))
	assert.True(t, f.manager.CheckDelayed(f.state, schedtest.At(departure+310)))
	assert.True(t, f.state.IsPredictable(), "delayed is not a state change")
	assert.Len(t, f.recorder.EventsOfType(ctdf.VehicleEventDelayed, "V1"), 1)

	f.apply(departure+400, 3, 200)
	assert.False(t, f.manager.CheckDelayed(f.state, schedtest.At(departure+400)))
	assert.False(t, f.state.Delayed)
}

func TestGrabAssignment(t *testing.T) {
	f := newFixture(t)
	f.apply(departure+60, 1, 100)

	f.manager.GrabAssignment(f.state, "V2", "B2", schedtest.At(departure+70))
	assert.True(t, f.state.IsPredictable(), "different block is not displaced")

	f.manager.GrabAssignment(f.state, "V2", "B1", schedtest.At(departure+70))
	assert.Equal(t, StatusUnassigned, f.state.Status)

	grabbed := f.recorder.EventsOfType(ctdf.VehicleEventAssignmentGrabbed, "V1")
	require.Len(t, grabbed, 1)
	assert.Contains(t, grabbed[0].Description, "V2")
}

func TestEventHistoryIsBounded(t *testing.T) {
	f := newFixture(t)
	f.apply(departure+60, 1, 100)

	for i := 0; i < 30; i++ {
		f.manager.EmitEvent(f.state, ctdf.VehicleEventAvlConflict, "conflict", time.Now())
	}
	assert.Equal(t, config.Default().Core.EventHistoryMaxSize, f.state.EventHistory.Len())
}

func TestSnapshotIsDetached(t *testing.T) {
	f := newFixture(t)
	f.apply(departure+60, 1, 100)

	snapshot, err := f.state.Snapshot()
	require.NoError(t, err)
	assert.True(t, snapshot.Predictable)
	assert.Equal(t, "B1", snapshot.BlockID)
	assert.Equal(t, "R1", snapshot.RouteID)
	assert.Len(t, snapshot.RecentMatches, 1)

	f.state.Lock()
	f.state.Match.DistanceAlongStopPath = 999
	f.state.Unlock()

	require.NotNil(t, snapshot.Match)
	assert.Equal(t, 100.0, snapshot.Match.DistanceAlongStopPath)
}
