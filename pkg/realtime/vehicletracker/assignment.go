package vehicletracker

import (
	"errors"
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/schedule"
)

var ErrUnknownAssignment = errors.New("assignment does not reference a known block, trip or route")

// AssignmentFilter decides which reported assignments are ignored. The expression sees the report as
// vehicle, assignment, assignmentType and source.
type AssignmentFilter struct {
	program *vm.Program
}

func assignmentEnv(report *ctdf.AvlReport) map[string]interface{} {
	return map[string]interface{}{
		"vehicle":        report.VehicleID,
		"assignment":     report.AssignmentID,
		"assignmentType": string(report.AssignmentType),
		"source":         report.Source,
	}
}

func NewAssignmentFilter(source string) (*AssignmentFilter, error) {
	if source == "" {
		return &AssignmentFilter{}, nil
	}

	program, err := expr.Compile(source, expr.Env(assignmentEnv(&ctdf.AvlReport{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling unpredictable assignments expression: %w", err)
	}
	return &AssignmentFilter{program: program}, nil
}

// Ignored is true when the report's assignment should not be used. Evaluation errors keep the
// assignment.
func (f *AssignmentFilter) Ignored(report *ctdf.AvlReport) bool {
	if f == nil || f.program == nil || !report.HasAssignment() {
		return false
	}

	result, err := expr.Run(f.program, assignmentEnv(report))
	if err != nil {
		log.Error().Err(err).Str("vehicle", report.VehicleID).Msg("Failed to evaluate assignment filter")
		return false
	}
	ignored, _ := result.(bool)
	return ignored
}

// resolveAssignment returns the blocks an assignment could refer to
func resolveAssignment(graph *schedule.Graph, report *ctdf.AvlReport) ([]*ctdf.Block, error) {
	switch report.AssignmentType {
	case ctdf.AssignmentTypeBlockID:
		if block := graph.Block(report.AssignmentID); block != nil {
			return []*ctdf.Block{block}, nil
		}
	case ctdf.AssignmentTypeTripID:
		if trip := graph.Trip(report.AssignmentID); trip != nil {
			if block := graph.Block(trip.BlockID); block != nil {
				return []*ctdf.Block{block}, nil
			}
		}
	case ctdf.AssignmentTypeRouteID:
		var blocks []*ctdf.Block
		seen := map[string]bool{}
		for _, trip := range graph.TripsForRoute(report.AssignmentID) {
			if seen[trip.BlockID] {
				continue
			}
			seen[trip.BlockID] = true
			if block := graph.Block(trip.BlockID); block != nil {
				blocks = append(blocks, block)
			}
		}
		if len(blocks) > 0 {
			return blocks, nil
		}
	}

	return nil, ErrUnknownAssignment
}

// distanceToBlock is the shortest distance from the location to any segment of the block's trips
func distanceToBlock(graph *schedule.Graph, block *ctdf.Block, location ctdf.Location) float64 {
	best := math.MaxFloat64
	for _, trip := range graph.TripsForBlock(block.ID) {
		for _, stopPath := range graph.StopPathsFor(trip.ID) {
			for _, segment := range stopPath.Segments() {
				best = math.Min(best, segment.DistanceToLocation(location))
			}
		}
	}
	return best
}
