package vehicletracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/realtime/blockassigner"
	"github.com/travigo/avlengine/pkg/realtime/matcher"
	"github.com/travigo/avlengine/pkg/realtime/vehiclestate"
	"github.com/travigo/avlengine/pkg/schedule"
)

// outcome of processing one report. A displaced vehicle is released after the lock of the vehicle
// that took its block has been dropped.
type outcome struct {
	result    string
	displaced string
	blockID   string
}

func (t *Tracker) process(j job) {
	report := j.report
	state := t.Registry.Lock(report.VehicleID)
	result := t.processLocked(state, &report, j.resubmitted)
	state.Unlock()

	if result.displaced != "" {
		t.releaseDisplaced(result.displaced, report.VehicleID, result.blockID, report.Time)
	}

	t.Metrics.AvlReport(result.result)
}

// filterReport drops duplicate, out of order, too frequent and implausible reports
func (t *Tracker) filterReport(state *vehiclestate.VehicleRuntimeState, report *ctdf.AvlReport) (string, bool) {
	previous := state.AvlReport
	if previous == nil {
		return "", true
	}

	if !report.Time.After(previous.Time) {
		log.Debug().Str("vehicle", report.VehicleID).Time("time", report.Time).Msg("Ignoring AVL report not newer than the previous one")
		return "out_of_order", false
	}

	elapsed := report.Time.Sub(previous.Time)
	if elapsed < time.Duration(t.Config.Avl.MinTimeBetweenAvlReportsSecs)*time.Second {
		log.Debug().Str("vehicle", report.VehicleID).Dur("elapsed", elapsed).Msg("Ignoring AVL report too soon after the previous one")
		return "too_frequent", false
	}

	if elapsed <= time.Duration(t.Config.Timeout.AllowableNoAvlSecs)*time.Second {
		speed := previous.Location.Distance(report.Location) / elapsed.Seconds()
		if speed > t.Config.Avl.MaxSpeed {
			log.Warn().
				Str("vehicle", report.VehicleID).
				Float64("speed", speed).
				Msg("Ignoring AVL report with implausible implied speed")
			return "implied_speed", false
		}
	}

	return "", true
}

func (t *Tracker) processLocked(state *vehiclestate.VehicleRuntimeState, report *ctdf.AvlReport, resubmitted bool) outcome {
	if resubmitted {
		if state.AvlReport != nil && state.AvlReport.Time.After(report.Time) {
			return outcome{result: "stale_resubmit"}
		}
		state.AvlReport = report
	} else {
		if result, ok := t.filterReport(state, report); !ok {
			return outcome{result: result}
		}
		state.RecordAvlReport(report)
	}
	t.Registry.SetLastReport(*report)

	if state.ForSchedBasedPreds {
		t.predict(state)
		return outcome{result: "sched_based"}
	}

	now := report.Time
	graph := t.Schedule.Graph()

	useAssignment := report.HasAssignment() && !t.Config.AutoAssigner.IgnoreAvlAssignments
	if useAssignment && t.filter.Ignored(report) {
		log.Debug().Str("vehicle", report.VehicleID).Str("assignment", report.AssignmentID).Msg("Assignment ignored by filter")
		useAssignment = false
	}

	var blocks []*ctdf.Block
	if useAssignment {
		t.noteAssignment(state, report, now)

		resolved, err := resolveAssignment(graph, report)
		if err != nil {
			log.Warn().Err(err).Str("vehicle", report.VehicleID).Str("assignment", report.AssignmentID).Msg("Unusable assignment")
			useAssignment = false
		}
		blocks = resolved
	}

	var candidates []matcher.Candidate
	var previous *ctdf.TemporalMatch

	switch {
	case state.IsPredictable() && state.Block != nil && (!useAssignment || containsBlock(blocks, state.Block.ID)):
		candidates = []matcher.Candidate{matcher.NewCandidate(graph, state.Block, state.ServiceDate)}
		previous = state.Match
	case useAssignment:
		candidates = t.assignmentCandidates(state, graph, blocks, report, now)
		if len(candidates) == 0 {
			t.Manager.ApplyNoMatch(state, now)
			return outcome{result: "no_candidates"}
		}
	default:
		return t.autoAssign(state, now)
	}

	match, ok := t.Matcher.Match(previous, report, candidates, matcher.Options{})
	if !ok {
		if state.IsPredictable() {
			t.Manager.ApplyNoMatch(state, now)
			return outcome{result: "no_match"}
		}
		return outcome{result: "unmatched"}
	}

	for i := range candidates {
		if candidates[i].Block.ID == match.BlockID {
			return t.commit(state, match, &candidates[i], state.Match, now)
		}
	}
	return outcome{result: "unmatched"}
}

func containsBlock(blocks []*ctdf.Block, blockID string) bool {
	for _, block := range blocks {
		if block.ID == blockID {
			return true
		}
	}
	return false
}

// noteAssignment records the reported assignment, emitting an event when it differs from the last one
func (t *Tracker) noteAssignment(state *vehiclestate.VehicleRuntimeState, report *ctdf.AvlReport, now time.Time) {
	if state.AssignmentID != "" && (state.AssignmentID != report.AssignmentID || state.AssignmentType != report.AssignmentType) {
		t.Manager.EmitEvent(state, ctdf.VehicleEventAssignmentChanged,
			fmt.Sprintf("Assignment changed from %s to %s", state.AssignmentID, report.AssignmentID), now)
	}
	state.AssignmentID = report.AssignmentID
	state.AssignmentType = report.AssignmentType
}

// assignmentCandidates are the active blocks of the assignment this vehicle may take. A block
// exclusively held by another real vehicle can only be grabbed from close enough to it.
func (t *Tracker) assignmentCandidates(state *vehiclestate.VehicleRuntimeState, graph *schedule.Graph, blocks []*ctdf.Block, report *ctdf.AvlReport, now time.Time) []matcher.Candidate {
	var candidates []matcher.Candidate

	for _, block := range blocks {
		serviceDate, active := graph.ServiceDateForBlock(block, report.Time,
			t.Config.Core.AllowableEarlySecondsForInitialMatching, t.Config.Core.AllowableLateSecondsForInitialMatching)
		if !active {
			continue
		}

		if t.Config.Core.ExclusiveBlockAssignments {
			holder, held := t.Registry.BlockHolder(block.ID)
			if held && holder.VehicleID != state.VehicleID && !holder.SchedBased {
				distance := distanceToBlock(graph, block, report.Location)
				if distance > t.Config.Core.MaxDistanceForAssignmentGrab {
					t.Manager.EmitEvent(state, ctdf.VehicleEventAvlConflict, fmt.Sprintf(
						"Vehicle is %.0fm from block %s so cannot take it from vehicle %s", distance, block.ID, holder.VehicleID), now)
					continue
				}
			}
		}

		candidates = append(candidates, matcher.NewCandidate(graph, block, serviceDate))
	}

	return candidates
}

func (t *Tracker) autoAssign(state *vehiclestate.VehicleRuntimeState, now time.Time) outcome {
	assignment, err := t.Assigner.Assign(state, now)
	if err != nil {
		if !errors.Is(err, blockassigner.ErrDisabled) && !errors.Is(err, blockassigner.ErrTooSoon) {
			log.Debug().Err(err).Str("vehicle", state.VehicleID).Msg("Auto assignment failed")
		}
		return outcome{result: "unassigned"}
	}

	return t.commit(state, assignment.Match, &assignment.Candidate, nil, now)
}

// commit applies a match and runs everything that follows from it
func (t *Tracker) commit(state *vehiclestate.VehicleRuntimeState, match *ctdf.TemporalMatch, candidate *matcher.Candidate, previous *ctdf.TemporalMatch, now time.Time) outcome {
	trip := candidate.Trips[match.TripIndex]
	displaced := t.Manager.ApplyMatch(state, match, candidate.Block, trip, candidate.ServiceDate, now)

	t.generateArrivalDepartures(state, previous, match)

	result := outcome{result: "matched", displaced: displaced, blockID: candidate.Block.ID}

	if matcher.AtEndOfBlock(match, candidate) {
		t.Manager.EndOfBlock(state, now)
		result.result = "end_of_block"
		return result
	}

	if t.Manager.CheckNoProgress(state, now) {
		result.result = "no_progress"
		return result
	}
	t.Manager.CheckDelayed(state, now)

	t.predict(state)

	return result
}

func (t *Tracker) predict(state *vehiclestate.VehicleRuntimeState) {
	predictions := t.Engine.Predict(state)
	t.Store.Set(state.VehicleID, predictions)

	for _, prediction := range predictions {
		t.Sink.RecordPrediction(prediction)
	}
}

// releaseDisplaced unassigns the vehicle that held a block another vehicle just matched to.
// Schedule based vehicles are removed entirely.
func (t *Tracker) releaseDisplaced(displacedID string, grabberID string, blockID string, now time.Time) {
	if holder, _ := t.Registry.BlockHolder(blockID); holder.VehicleID != grabberID {
		return
	}

	state, ok := t.Registry.LockExisting(displacedID)
	if !ok {
		return
	}
	defer state.Unlock()

	schedBased := state.ForSchedBasedPreds
	if schedBased || t.Config.Core.ExclusiveBlockAssignments {
		t.Manager.GrabAssignment(state, grabberID, blockID, now)
	}

	if schedBased {
		log.Info().Str("vehicle", displacedID).Str("block", blockID).Msg("Removing schedule based vehicle")
		t.Registry.RemoveLastReport(displacedID)
		t.Registry.Remove(displacedID)
	}
}

// runAutoAssigner retries auto assignment for unassigned vehicles that are still reporting
func (t *Tracker) runAutoAssigner(ctx context.Context) {
	if !t.Config.AutoAssigner.Enabled {
		return
	}

	ticker := time.NewTicker(time.Duration(max(t.Config.AutoAssigner.MinTimeBetweenAutoAssigningSecs, 1)) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.AutoAssignUnassigned(t.Now())
		}
	}
}

// AutoAssignUnassigned retries vehicles without an assignment whose latest recent report was rate
// limited instead of attempted. The rate limit is checked against now.
func (t *Tracker) AutoAssignUnassigned(now time.Time) {
	recent := time.Duration(t.Config.Timeout.AllowableNoAvlSecs) * time.Second

	for _, state := range t.Registry.Vehicles() {
		state.Lock()
		if !t.Registry.Registered(state) || state.IsPredictable() || state.ForSchedBasedPreds || state.AvlReport == nil || now.Sub(state.AvlReport.Time) > recent ||
			!state.LastAutoAssignAttempt.Before(state.AvlReport.Time) {
			state.Unlock()
			continue
		}
		result := t.autoAssign(state, now)
		state.Unlock()

		if result.displaced != "" {
			t.releaseDisplaced(result.displaced, state.VehicleID, result.blockID, now)
		}
	}
}
