package vehiclestate

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/events"
	"github.com/travigo/avlengine/pkg/schedule"
	"github.com/travigo/avlengine/pkg/stats"
)

// Manager applies state transitions. Every method expects the caller to hold the vehicle's lock.
type Manager struct {
	Config   *config.Config
	Registry *Registry
	Schedule *schedule.Provider
	Sink     events.Sink
	Metrics  *stats.Metrics

	// Called once a vehicle stops being predictable
	OnUnpredictable func(vehicleID string)
}

func NewManager(cfg *config.Config, registry *Registry, provider *schedule.Provider, sink events.Sink, metrics *stats.Metrics) *Manager {
	return &Manager{
		Config:   cfg,
		Registry: registry,
		Schedule: provider,
		Sink:     sink,
		Metrics:  metrics,
	}
}

// ApplyMatch commits a successful match, making the vehicle predictable if it was not already.
// Returns the vehicle that previously held the block when the match took it over.
func (m *Manager) ApplyMatch(state *VehicleRuntimeState, match *ctdf.TemporalMatch, block *ctdf.Block, trip *ctdf.Trip, serviceDate time.Time, now time.Time) string {
	wasPredictable := state.IsPredictable()
	previousBlock := state.Block

	state.Match = match
	state.MatchHistory.Push(*match)
	state.Block = block
	state.Trip = trip
	state.ServiceDate = serviceDate
	state.BadMatches = 0
	state.Status = StatusPredictable
	state.ScheduleAdherence = match.ScheduleAdherence
	state.ScheduleAdherenceValid = !trip.NoSchedule

	if previousBlock != nil && previousBlock.ID != block.ID {
		m.Registry.ReleaseBlock(previousBlock.ID, state.VehicleID)
	}
	previousHolder := m.Registry.AssignBlock(block.ID, state.VehicleID, state.ForSchedBasedPreds)

	if !wasPredictable {
		m.Metrics.PredictableDelta(1)
		m.emit(state, ctdf.VehicleEventPredictable, fmt.Sprintf("Vehicle became predictable on block %s trip %s", block.ID, trip.ID), now, func(event *ctdf.VehicleEvent) {
			event.BecamePredictable = true
		})
	}

	if state.AvlReport != nil {
		m.Sink.RecordMatch(ctdf.Match{
			VehicleID:     state.VehicleID,
			Time:          state.AvlReport.Time,
			TemporalMatch: *match,
		})
	}

	return previousHolder
}

// ApplyNoMatch counts a bad match, the vehicle becomes unpredictable once the allowance is exceeded.
// Returns true when that happened.
func (m *Manager) ApplyNoMatch(state *VehicleRuntimeState, now time.Time) bool {
	if !state.IsPredictable() {
		return false
	}

	state.BadMatches++
	if state.BadMatches <= m.Config.Core.AllowableNumberOfBadMatches {
		log.Debug().Str("vehicle", state.VehicleID).Int("badmatches", state.BadMatches).Msg("No match, keeping previous match")
		return false
	}

	m.MakeUnpredictable(state, ctdf.VehicleEventNoMatch,
		fmt.Sprintf("No match found for %d consecutive AVL reports", state.BadMatches), now)
	return true
}

// MakeUnpredictable removes the vehicle's assignment and emits an event of the given type
func (m *Manager) MakeUnpredictable(state *VehicleRuntimeState, eventType ctdf.VehicleEventType, description string, now time.Time) {
	if !state.IsPredictable() {
		state.Status = StatusUnpredictable
		return
	}

	m.emit(state, eventType, description, now, func(event *ctdf.VehicleEvent) {
		event.BecameUnpredictable = true
	})
	m.Metrics.PredictableDelta(-1)

	if state.Block != nil {
		m.Registry.ReleaseBlock(state.Block.ID, state.VehicleID)
	}

	state.Status = StatusUnpredictable
	state.Match = nil
	state.Block = nil
	state.Trip = nil
	state.BadMatches = 0
	state.Delayed = false
	state.ScheduleAdherenceValid = false

	if m.OnUnpredictable != nil {
		m.OnUnpredictable(state.VehicleID)
	}
}

// GrabAssignment unassigns a vehicle whose block was taken by another vehicle
func (m *Manager) GrabAssignment(displaced *VehicleRuntimeState, grabberID string, blockID string, now time.Time) {
	if displaced.Block == nil || displaced.Block.ID != blockID {
		return
	}

	m.MakeUnpredictable(displaced, ctdf.VehicleEventAssignmentGrabbed,
		fmt.Sprintf("Assignment %s grabbed by vehicle %s", blockID, grabberID), now)

	displaced.Status = StatusUnassigned
	displaced.AssignmentID = ""
	displaced.AssignmentType = ""
}

// EndOfBlock finishes a vehicle's block
func (m *Manager) EndOfBlock(state *VehicleRuntimeState, now time.Time) {
	blockID := ""
	if state.Block != nil {
		blockID = state.Block.ID
	}
	m.MakeUnpredictable(state, ctdf.VehicleEventEndOfBlock, fmt.Sprintf("Vehicle reached end of block %s", blockID), now)
	state.Status = StatusUnassigned
}

// distanceTravelled is how far along the block the vehicle moved since the match nearest to window
// ago. False when the history does not cover the window.
func (m *Manager) distanceTravelled(state *VehicleRuntimeState, window time.Duration) (float64, bool) {
	if state.Match == nil || state.Block == nil || window <= 0 {
		return 0, false
	}

	old, ok := state.MatchAtOrBefore(state.Match.AvlTime.Add(-window))
	if !ok || old.BlockID != state.Match.BlockID {
		return 0, false
	}

	graph := m.Schedule.Graph()
	from := graph.DistanceAlongBlock(old.BlockID, old.TripIndex, old.StopPathIndex, old.DistanceAlongStopPath)
	to := graph.DistanceAlongBlock(state.Match.BlockID, state.Match.TripIndex, state.Match.StopPathIndex, state.Match.DistanceAlongStopPath)

	return to - from, true
}

func (m *Manager) waiting(state *VehicleRuntimeState) bool {
	if state.Trip == nil {
		return false
	}
	return state.AtWaitStop(m.Schedule.Graph().StopPathsFor(state.Trip.ID))
}

// CheckNoProgress makes the vehicle unpredictable if it has barely moved over the no progress
// window. Vehicles waiting at a wait stop or layover are left alone.
func (m *Manager) CheckNoProgress(state *VehicleRuntimeState, now time.Time) bool {
	if !state.IsPredictable() || state.ForSchedBasedPreds || m.waiting(state) {
		return false
	}

	distance, ok := m.distanceTravelled(state, time.Duration(m.Config.Core.TimeForDeterminingNoProgressSecs)*time.Second)
	if !ok || distance >= m.Config.Core.MinDistanceForNoProgress {
		return false
	}

	m.MakeUnpredictable(state, ctdf.VehicleEventNoProgress,
		fmt.Sprintf("Vehicle only travelled %.0fm in %ds", distance, m.Config.Core.TimeForDeterminingNoProgressSecs), now)
	return true
}

// CheckDelayed updates the delayed flag, emitting an event when the vehicle becomes delayed
func (m *Manager) CheckDelayed(state *VehicleRuntimeState, now time.Time) bool {
	if !state.IsPredictable() || state.ForSchedBasedPreds || m.waiting(state) {
		state.Delayed = false
		return false
	}

	distance, ok := m.distanceTravelled(state, time.Duration(m.Config.Core.TimeForDeterminingDelayedSecs)*time.Second)
	delayed := ok && distance < m.Config.Core.MinDistanceForDelayed

	if delayed && !state.Delayed {
		m.emit(state, ctdf.VehicleEventDelayed,
			fmt.Sprintf("Vehicle only travelled %.0fm in %ds", distance, m.Config.Core.TimeForDeterminingDelayedSecs), now, nil)
	}
	state.Delayed = delayed

	return delayed
}

// EmitEvent records an event that does not change predictability
func (m *Manager) EmitEvent(state *VehicleRuntimeState, eventType ctdf.VehicleEventType, description string, now time.Time) {
	m.emit(state, eventType, description, now, nil)
}

func (m *Manager) emit(state *VehicleRuntimeState, eventType ctdf.VehicleEventType, description string, now time.Time, modify func(event *ctdf.VehicleEvent)) {
	event := ctdf.NewVehicleEvent(eventType, state.VehicleID, now, description)
	event.Predictable = state.IsPredictable()

	if state.AvlReport != nil {
		event.AvlTime = state.AvlReport.Time
		location := state.AvlReport.Location
		event.Location = &location
	}
	if state.Block != nil {
		event.BlockID = state.Block.ID
	}
	if state.Trip != nil {
		event.TripID = state.Trip.ID
		event.RouteID = state.Trip.RouteID
	}
	if state.Match != nil {
		event.StopID = state.Match.AtStopID
		if event.StopID == "" {
			if stopPath := m.Schedule.Graph().StopPath(state.Match.StopPathID); stopPath != nil {
				event.StopID = stopPath.StopID
			}
		}
	}

	if modify != nil {
		modify(&event)
	}
	if event.BecameUnpredictable {
		event.Predictable = false
	}
	if event.BecamePredictable {
		event.Predictable = true
	}

	state.EventHistory.Push(event)
	m.Sink.RecordEvent(event)
	m.Metrics.VehicleEvent(string(eventType))

	log.Debug().
		Str("vehicle", state.VehicleID).
		Str("type", string(eventType)).
		Str("block", event.BlockID).
		Msg(description)
}

// ScheduledWaitStopDeparture is the scheduled departure from the wait stop the vehicle is at
func (m *Manager) ScheduledWaitStopDeparture(state *VehicleRuntimeState) (time.Time, bool) {
	if state.Trip == nil || state.Trip.NoSchedule || !m.waiting(state) {
		return time.Time{}, false
	}

	scheduleTime, ok := state.Trip.ScheduleTimeAt(state.Match.AtStopPathIndex)
	if !ok || scheduleTime.Time() == ctdf.NoTime {
		return time.Time{}, false
	}

	return m.Schedule.Graph().Epoch(state.ServiceDate, scheduleTime.Time()), true
}
