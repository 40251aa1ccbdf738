package blockassigner

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/realtime/matcher"
	"github.com/travigo/avlengine/pkg/realtime/vehiclestate"
	"github.com/travigo/avlengine/pkg/schedule"
	"github.com/travigo/avlengine/pkg/stats"
)

var (
	ErrDisabled            = errors.New("auto assigner disabled")
	ErrTooSoon             = errors.New("auto assignment attempted too recently")
	ErrNotEnoughMovement   = errors.New("no earlier report far enough away to determine direction")
	ErrNoCandidates        = errors.New("no active block matches the vehicle")
	ErrAmbiguousAssignment = errors.New("more than one active block matches the vehicle")
)

// Assignment is the single block an unassigned vehicle was found to be operating
type Assignment struct {
	Block       *ctdf.Block
	Trip        *ctdf.Trip
	ServiceDate time.Time
	Match       *ctdf.TemporalMatch
	Candidate   matcher.Candidate
}

type Assigner struct {
	Config   *config.Config
	Matcher  *matcher.Matcher
	Schedule *schedule.Provider
	Registry *vehiclestate.Registry
	Metrics  *stats.Metrics

	MaxGoroutines int
}

func New(cfg *config.Config, m *matcher.Matcher, provider *schedule.Provider, registry *vehiclestate.Registry, metrics *stats.Metrics) *Assigner {
	return &Assigner{
		Config:        cfg,
		Matcher:       m,
		Schedule:      provider,
		Registry:      registry,
		Metrics:       metrics,
		MaxGoroutines: 16,
	}
}

// Assign searches the active blocks for the one the vehicle is operating. The caller holds the
// vehicle's lock, now is the time of the vehicle's latest report.
func (a *Assigner) Assign(state *vehiclestate.VehicleRuntimeState, now time.Time) (*Assignment, error) {
	assignment, err := a.assign(state, now)

	result := "assigned"
	switch {
	case errors.Is(err, ErrTooSoon), errors.Is(err, ErrDisabled):
		return nil, err
	case errors.Is(err, ErrNotEnoughMovement):
		result = "no_movement"
	case errors.Is(err, ErrNoCandidates):
		result = "no_candidates"
	case errors.Is(err, ErrAmbiguousAssignment):
		result = "ambiguous"
	}
	a.Metrics.AutoAssignAttempt(result)

	return assignment, err
}

func (a *Assigner) assign(state *vehiclestate.VehicleRuntimeState, now time.Time) (*Assignment, error) {
	if !a.Config.AutoAssigner.Enabled {
		return nil, ErrDisabled
	}
	if state.AvlReport == nil {
		return nil, ErrNotEnoughMovement
	}

	minTimeBetween := time.Duration(a.Config.AutoAssigner.MinTimeBetweenAutoAssigningSecs) * time.Second
	if !state.LastAutoAssignAttempt.IsZero() && now.Sub(state.LastAutoAssignAttempt) < minTimeBetween {
		return nil, ErrTooSoon
	}
	state.LastAutoAssignAttempt = now

	current := *state.AvlReport
	earlier, ok := a.earlierReport(state, current)
	if !ok {
		return nil, ErrNotEnoughMovement
	}

	graph := a.Schedule.Graph()
	blocks := graph.BlocksActiveAt(current.Time, a.Config.AutoAssigner.AllowableEarlySeconds, a.Config.AutoAssigner.AllowableLateSeconds)

	p := pool.NewWithResults[*Assignment]()
	p.WithMaxGoroutines(a.MaxGoroutines)

	for _, block := range blocks {
		if !a.available(block, state.VehicleID) {
			continue
		}

		p.Go(func() *Assignment {
			return a.evaluate(graph, block, current, earlier)
		})
	}

	var assignments []*Assignment
	for _, assignment := range p.Wait() {
		if assignment != nil {
			assignments = append(assignments, assignment)
		}
	}

	switch len(assignments) {
	case 0:
		return nil, ErrNoCandidates
	case 1:
		log.Info().
			Str("vehicle", state.VehicleID).
			Str("block", assignments[0].Block.ID).
			Str("trip", assignments[0].Trip.ID).
			Msg("Auto assigned vehicle to block")
		return assignments[0], nil
	default:
		log.Debug().Str("vehicle", state.VehicleID).Int("candidates", len(assignments)).Msg("Ambiguous auto assignment")
		return nil, ErrAmbiguousAssignment
	}
}

// earlierReport is the newest previous report far enough from the current one to show direction
func (a *Assigner) earlierReport(state *vehiclestate.VehicleRuntimeState, current ctdf.AvlReport) (ctdf.AvlReport, bool) {
	for i := state.AvlHistory.Len() - 1; i >= 0; i-- {
		report := state.AvlHistory.At(i)
		if !report.Time.Before(current.Time) {
			continue
		}
		if report.Location.Distance(current.Location) >= a.Config.AutoAssigner.MinDistanceFromCurrentReport {
			return report, true
		}
	}
	return ctdf.AvlReport{}, false
}

// available is false for blocks exclusively held by another real vehicle
func (a *Assigner) available(block *ctdf.Block, vehicleID string) bool {
	if !a.Config.Core.ExclusiveBlockAssignments {
		return true
	}
	holder, held := a.Registry.BlockHolder(block.ID)
	return !held || holder.SchedBased || holder.VehicleID == vehicleID
}

func (a *Assigner) evaluate(graph *schedule.Graph, block *ctdf.Block, current ctdf.AvlReport, earlier ctdf.AvlReport) *Assignment {
	serviceDate, active := graph.ServiceDateForBlock(block, current.Time, a.Config.AutoAssigner.AllowableEarlySeconds, a.Config.AutoAssigner.AllowableLateSeconds)
	if !active {
		return nil
	}

	candidates := []matcher.Candidate{matcher.NewCandidate(graph, block, serviceDate)}
	options := matcher.Options{AutoAssigning: true}

	match, ok := a.Matcher.Match(nil, &current, candidates, options)
	if !ok {
		return nil
	}

	// the earlier report has to be on the same block before the current position
	earlierMatch, ok := a.Matcher.Match(nil, &earlier, candidates, options)
	if !ok || !earlierMatch.Indices.IsBefore(match.Indices) &&
		!(earlierMatch.Indices == match.Indices && earlierMatch.DistanceAlongSegment < match.DistanceAlongSegment) {
		return nil
	}

	return &Assignment{
		Block:       block,
		Trip:        candidates[0].Trips[match.TripIndex],
		ServiceDate: serviceDate,
		Match:       match,
		Candidate:   candidates[0],
	}
}
