package matcher

import (
	"math"
	"time"

	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/schedule"
	"golang.org/x/exp/slices"
)

// Candidate is a block the vehicle may be operating, captured from a single graph snapshot
type Candidate struct {
	Block       *ctdf.Block
	Trips       []*ctdf.Trip
	StopPaths   [][]*ctdf.StopPath
	ServiceDate time.Time

	// Trips before this index are not considered
	StartTripIndex int
}

func NewCandidate(graph *schedule.Graph, block *ctdf.Block, serviceDate time.Time) Candidate {
	candidate := Candidate{
		Block:       block,
		ServiceDate: serviceDate,
	}
	for _, trip := range graph.TripsForBlock(block.ID) {
		if _, flagged := graph.Flagged(trip.ID); flagged {
			continue
		}
		candidate.Trips = append(candidate.Trips, trip)
		candidate.StopPaths = append(candidate.StopPaths, graph.StopPathsFor(trip.ID))
	}
	return candidate
}

// Length is the total distance of all trips in the candidate
func (c *Candidate) Length() float64 {
	total := 0.0
	for _, stopPaths := range c.StopPaths {
		for _, stopPath := range stopPaths {
			total += stopPath.Length()
		}
	}
	return total
}

func (c *Candidate) distanceAlong(tripIndex int, stopPathIndex int, distanceAlongStopPath float64) float64 {
	distance := distanceAlongStopPath
	for t := 0; t <= tripIndex && t < len(c.StopPaths); t++ {
		for s, stopPath := range c.StopPaths[t] {
			if t == tripIndex && s >= stopPathIndex {
				break
			}
			distance += stopPath.Length()
		}
	}
	return distance
}

type Options struct {
	// Use the auto assigner's distance and adherence allowances
	AutoAssigning bool
}

// Matcher maps AVL reports onto candidate blocks. It holds no per vehicle state.
type Matcher struct {
	Config *config.Config
}

func New(cfg *config.Config) *Matcher {
	return &Matcher{Config: cfg}
}

// continuity ranks, lower is preferred
const (
	continuitySameTrip = iota
	continuityLaterTrip
	continuityBackward
)

// distances closer than this are treated as equal
const distanceEpsilon = 0.01

type spatialMatch struct {
	match       ctdf.TemporalMatch
	continuity  int
	indexOffset int
}

// Match finds the best temporal match for the report over the candidates. Continuity with the
// previous match is preferred first (same trip, then later trips, then anything behind the previous
// match), then the perpendicular distance to the segment, then how little of the block was skipped.
func (m *Matcher) Match(prev *ctdf.TemporalMatch, report *ctdf.AvlReport, candidates []Candidate, opts Options) (*ctdf.TemporalMatch, bool) {
	var matches []spatialMatch

	for c := range candidates {
		matches = append(matches, m.matchCandidate(&candidates[c], prev, report, opts)...)
	}

	if len(matches) == 0 {
		return nil, false
	}

	slices.SortStableFunc(matches, func(a, b spatialMatch) int {
		if a.continuity != b.continuity {
			return a.continuity - b.continuity
		}
		if math.Abs(a.match.DistanceToSegment-b.match.DistanceToSegment) > distanceEpsilon {
			if a.match.DistanceToSegment < b.match.DistanceToSegment {
				return -1
			}
			return 1
		}
		return a.indexOffset - b.indexOffset
	})

	best := matches[0].match
	return &best, true
}

func (m *Matcher) matchCandidate(candidate *Candidate, prev *ctdf.TemporalMatch, report *ctdf.AvlReport, opts Options) []spatialMatch {
	continuing := prev != nil && prev.BlockID == candidate.Block.ID

	startTrip, startStopPath := candidate.StartTripIndex, 0
	if continuing {
		startTrip, startStopPath = prev.TripIndex, prev.StopPathIndex
	}

	maxDistance := m.Config.Core.MaxDistanceFromSegment
	if opts.AutoAssigning {
		maxDistance = m.Config.Core.MaxDistanceFromSegmentForAutoAssigning
	}
	checkHeading := report.HasValidHeading(m.Config.Avl.MinSpeedForValidHeading) && m.Config.Core.MaxHeadingOffsetFromSegment < 360

	var blockLength float64
	if prev == nil {
		blockLength = candidate.Length()
	}

	var matches []spatialMatch
	examined := 0

	for tripIndex := startTrip; tripIndex < len(candidate.Trips); tripIndex++ {
		trip := candidate.Trips[tripIndex]
		stopPaths := candidate.StopPaths[tripIndex]

		firstStopPath := 0
		if tripIndex == startTrip {
			firstStopPath = startStopPath
		}

		for stopPathIndex := firstStopPath; stopPathIndex < len(stopPaths); stopPathIndex++ {
			// unmatched vehicles search the whole candidate
			if continuing && examined > m.Config.Avl.MaxStopPathsAhead {
				return matches
			}
			examined++

			stopPath := stopPaths[stopPathIndex]
			allowed := maxDistance
			if stopPath.MaxDistance > 0 {
				allowed = stopPath.MaxDistance
			}

			endOfBlock := tripIndex == len(candidate.Trips)-1 && stopPathIndex == len(stopPaths)-1
			segments := stopPath.Segments()

			bestSegment, bestDistance := -1, math.MaxFloat64
			for segmentIndex, segment := range segments {
				distance := segment.DistanceToLocation(report.Location)
				segmentAllowed := allowed
				// vehicles overshooting the final stop of the block can still match onto it
				if endOfBlock && segmentIndex == len(segments)-1 && segment.DistanceAlong(report.Location) >= segment.Length() {
					segmentAllowed = math.Max(allowed, m.Config.Core.DistanceFromLastStopForEndMatching)
				}
				if distance > segmentAllowed || distance >= bestDistance {
					continue
				}
				if checkHeading && segment.Length() > 0 &&
					ctdf.HeadingDifference(*report.Heading, segment.Heading()) > m.Config.Core.MaxHeadingOffsetFromSegment {
					continue
				}
				bestSegment, bestDistance = segmentIndex, distance
			}
			if bestSegment < 0 {
				continue
			}

			segment := segments[bestSegment]
			distanceAlongSegment := segment.DistanceAlong(report.Location)

			match := ctdf.TemporalMatch{
				BlockID: candidate.Block.ID,
				TripID:  trip.ID,
				Indices: ctdf.Indices{
					TripIndex:     tripIndex,
					StopPathIndex: stopPathIndex,
					SegmentIndex:  bestSegment,
				},
				StopPathID:            stopPath.ID,
				DistanceAlongSegment:  distanceAlongSegment,
				DistanceAlongStopPath: stopPath.DistanceAlong(bestSegment, distanceAlongSegment),
				DistanceToSegment:     bestDistance,
				AvlTime:               report.Time,
			}
			m.determineAtStop(&match, stopPaths)

			if !m.withinAdherence(&match, trip, stopPaths, candidate.ServiceDate, report.Time, prev == nil, opts) {
				continue
			}

			if prev == nil && blockLength > 0 {
				remaining := blockLength - candidate.distanceAlong(tripIndex, stopPathIndex, match.DistanceAlongStopPath)
				if remaining < m.Config.Core.DistanceFromEndOfBlockForInitialMatching {
					continue
				}
			}

			spatial := spatialMatch{match: match, indexOffset: examined}
			if continuing {
				switch {
				case match.Indices.IsBefore(prev.Indices) ||
					(match.Indices == prev.Indices && match.DistanceAlongSegment < prev.DistanceAlongSegment-distanceEpsilon):
					spatial.continuity = continuityBackward
				case match.TripIndex > prev.TripIndex:
					spatial.continuity = continuityLaterTrip
				}
			}
			matches = append(matches, spatial)
		}
	}

	return matches
}

func (m *Matcher) determineAtStop(match *ctdf.TemporalMatch, stopPaths []*ctdf.StopPath) {
	stopPath := stopPaths[match.StopPathIndex]

	if stopPath.Length()-match.DistanceAlongStopPath <= m.Config.Core.BeforeStopDistance {
		match.AtStop = true
		match.AtStopPathIndex = match.StopPathIndex
		match.AtStopID = stopPath.StopID
		return
	}

	if match.StopPathIndex > 0 && match.DistanceAlongStopPath <= m.Config.Core.AfterStopDistance {
		match.AtStop = true
		match.AtStopPathIndex = match.StopPathIndex - 1
		match.AtStopID = stopPaths[match.StopPathIndex-1].StopID
	}
}

// ExpectedSecs returns the scheduled seconds into the service day at which the vehicle should be at
// the matched position. When at a stop the scheduled arrival and departure bound a window.
func ExpectedSecs(match *ctdf.TemporalMatch, trip *ctdf.Trip, stopPaths []*ctdf.StopPath) (float64, float64, bool) {
	if trip.NoSchedule {
		return 0, 0, false
	}

	if match.AtStop {
		scheduleTime, ok := trip.ScheduleTimeAt(match.AtStopPathIndex)
		if !ok {
			return 0, 0, false
		}
		arrival, departure := scheduleTime.ArrivalOrDeparture(), scheduleTime.Time()
		if arrival == ctdf.NoTime {
			return 0, 0, false
		}
		return float64(arrival), float64(departure), true
	}

	if match.StopPathIndex == 0 {
		departure := trip.StartTime()
		if departure == ctdf.NoTime {
			return 0, 0, false
		}
		return float64(departure), float64(departure), true
	}

	previous, ok := trip.ScheduleTimeAt(match.StopPathIndex - 1)
	if !ok {
		return 0, 0, false
	}
	next, ok := trip.ScheduleTimeAt(match.StopPathIndex)
	if !ok {
		return 0, 0, false
	}

	from, to := previous.Time(), next.ArrivalOrDeparture()
	if from == ctdf.NoTime || to == ctdf.NoTime {
		return 0, 0, false
	}

	fraction := 0.0
	if length := stopPaths[match.StopPathIndex].Length(); length > 0 {
		fraction = math.Min(1, match.DistanceAlongStopPath/length)
	}
	expected := float64(from) + fraction*float64(to-from)
	return expected, expected, true
}

// ScheduleAdherence is positive when the vehicle is early
func ScheduleAdherence(match *ctdf.TemporalMatch, trip *ctdf.Trip, stopPaths []*ctdf.StopPath, serviceDate time.Time, avlTime time.Time) (time.Duration, bool) {
	windowStart, windowEnd, ok := ExpectedSecs(match, trip, stopPaths)
	if !ok {
		return 0, false
	}

	actual := avlTime.Sub(serviceDate).Seconds()

	var adherence float64
	switch {
	case actual < windowStart:
		adherence = windowStart - actual
	case actual > windowEnd:
		adherence = windowEnd - actual
	}
	return time.Duration(adherence * float64(time.Second)), true
}

func (m *Matcher) withinAdherence(match *ctdf.TemporalMatch, trip *ctdf.Trip, stopPaths []*ctdf.StopPath, serviceDate time.Time, avlTime time.Time, initial bool, opts Options) bool {
	adherence, ok := ScheduleAdherence(match, trip, stopPaths, serviceDate, avlTime)
	if !ok {
		// frequency based, nothing to compare against
		return true
	}
	match.ScheduleAdherence = adherence

	early, late := m.Config.Core.AllowableEarlySeconds, m.Config.Core.AllowableLateSeconds
	switch {
	case opts.AutoAssigning:
		early, late = m.Config.AutoAssigner.AllowableEarlySeconds, m.Config.AutoAssigner.AllowableLateSeconds
	case initial:
		early, late = m.Config.Core.AllowableEarlySecondsForInitialMatching, m.Config.Core.AllowableLateSecondsForInitialMatching
	}

	layover := stopPaths[match.StopPathIndex].IsLayover
	if match.AtStop {
		layover = stopPaths[match.AtStopPathIndex].IsLayover
	}
	if layover && m.Config.Core.AllowableEarlyForLayoverSeconds > early {
		early = m.Config.Core.AllowableEarlyForLayoverSeconds
	}

	seconds := adherence.Seconds()
	if seconds > float64(early) || -seconds > float64(late) {
		return false
	}
	return true
}

// AtEndOfBlock is true when the match is at the final stop of the final trip of the block
func AtEndOfBlock(match *ctdf.TemporalMatch, candidate *Candidate) bool {
	lastTrip := len(candidate.Trips) - 1
	if lastTrip < 0 || match.TripIndex != lastTrip || !match.AtStop {
		return false
	}
	return match.AtStopPathIndex == len(candidate.StopPaths[lastTrip])-1
}
