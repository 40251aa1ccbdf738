package schedule

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
)

type ProblemKind string

const (
	ProblemEmptyTripPattern      ProblemKind = "EmptyTripPattern"
	ProblemMissingReference      ProblemKind = "MissingReference"
	ProblemScheduleTimesMismatch ProblemKind = "ScheduleTimesMismatch"
	ProblemTravelTimesMismatch   ProblemKind = "TravelTimesMismatch"
	ProblemTooManySegments       ProblemKind = "TooManyTravelTimeSegments"
	ProblemInvalidTravelTimes    ProblemKind = "InvalidTravelTimes"
)

// Problem is an invariant violation found while normalising, the entity is excluded from queries
type Problem struct {
	Kind     ProblemKind
	EntityID string
	Message  string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s %s: %s", p.Kind, p.EntityID, p.Message)
}

// Normalize is the explicit post-load step. It caches derived values, fills in schedule derived
// travel times and derived block windows, and flags anything that breaks the graph invariants.
// Must be called once before the graph is published.
func (g *Graph) Normalize(cfg config.TravelTimesConfig) []Problem {
	var problems []Problem
	report := func(kind ProblemKind, id string, format string, args ...any) {
		problem := Problem{Kind: kind, EntityID: id, Message: fmt.Sprintf(format, args...)}
		problems = append(problems, problem)
		g.flag(id, problem.String())
	}

	for _, stopPath := range g.StopPaths {
		stopPath.CacheLength()
	}

	for id, pattern := range g.TripPatterns {
		if len(pattern.StopPathIDs) == 0 {
			report(ProblemEmptyTripPattern, id, "trip pattern has no stop paths")
			continue
		}
		for _, stopPathID := range pattern.StopPathIDs {
			if g.StopPaths[stopPathID] == nil {
				report(ProblemMissingReference, id, "unknown stop path %s", stopPathID)
				break
			}
		}
	}

	for id, trip := range g.Trips {
		if _, flagged := g.flagged[trip.TripPatternID]; flagged || g.TripPatterns[trip.TripPatternID] == nil {
			report(ProblemMissingReference, id, "trip pattern %s unusable", trip.TripPatternID)
			continue
		}
		stopPaths := g.StopPathsFor(id)

		if !trip.NoSchedule && len(trip.ScheduleTimes) != len(stopPaths) {
			report(ProblemScheduleTimesMismatch, id, "%d schedule times for %d stop paths", len(trip.ScheduleTimes), len(stopPaths))
			continue
		}

		travelTimes := g.TravelTimes[trip.TravelTimesID]
		if travelTimes == nil {
			travelTimes = BuildTravelTimes(trip, stopPaths, cfg)
			trip.TravelTimesID = travelTimes.ID
			g.TravelTimes[travelTimes.ID] = travelTimes
		}

		if len(travelTimes.StopPaths) != len(stopPaths) {
			report(ProblemTravelTimesMismatch, id, "travel times %s cover %d of %d stop paths", travelTimes.ID, len(travelTimes.StopPaths), len(stopPaths))
			continue
		}
		for i := range travelTimes.StopPaths {
			stopPathTimes := &travelTimes.StopPaths[i]
			if len(stopPathTimes.TravelTimesMsec) > cfg.MaxTravelTimeSegments {
				report(ProblemTooManySegments, id, "stop path %d has %d travel time segments", i, len(stopPathTimes.TravelTimesMsec))
				break
			}
			if !stopPathTimes.IsValid() {
				report(ProblemInvalidTravelTimes, id, "stop path %d has negative travel times", i)
				break
			}
		}
	}

	for id, block := range g.Blocks {
		start, end := ctdf.NoTime, ctdf.NoTime
		usable := 0
		for _, tripID := range block.TripIDs {
			trip := g.Trips[tripID]
			if trip == nil {
				report(ProblemMissingReference, id, "unknown trip %s", tripID)
				break
			}
			if trip.BlockID == "" {
				trip.BlockID = id
			}
			if _, flagged := g.flagged[tripID]; !flagged {
				usable++
			}
			if tripStart := trip.StartTime(); tripStart != ctdf.NoTime && (start == ctdf.NoTime || tripStart < start) {
				start = tripStart
			}
			if tripEnd := trip.EndTime(); tripEnd > end {
				end = tripEnd
			}
		}
		if usable == 0 {
			report(ProblemMissingReference, id, "block has no usable trips")
			continue
		}
		if block.StartTime == 0 && block.EndTime == 0 && start != ctdf.NoTime {
			block.StartTime = start
			block.EndTime = end
		}
	}

	g.index()

	for _, problem := range problems {
		log.Warn().Str("kind", string(problem.Kind)).Str("entity", problem.EntityID).Msg(problem.Message)
	}

	return problems
}
