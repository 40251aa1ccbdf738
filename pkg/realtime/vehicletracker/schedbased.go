package vehicletracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/schedule"
)

const schedBasedSource = "Schedule"

func SchedBasedVehicleID(blockID string) string {
	return fmt.Sprintf("block_%s_schedBasedVehicle", blockID)
}

// SchedBasedGenerator creates synthetic vehicles for blocks about to start that no real vehicle is
// operating, so predictions exist from the schedule alone
type SchedBasedGenerator struct {
	tracker *Tracker

	MaxGoroutines int
}

func NewSchedBasedGenerator(t *Tracker) *SchedBasedGenerator {
	return &SchedBasedGenerator{
		tracker:       t,
		MaxGoroutines: 8,
	}
}

func (g *SchedBasedGenerator) Run(ctx context.Context) {
	interval := time.Duration(max(g.tracker.Config.Timeout.SchedBasedPollingSecs, 1)) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Starting schedule based vehicle generator")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Generate(g.tracker.Now())
		}
	}
}

// Generate creates the missing schedule based vehicles and returns their ids
func (g *SchedBasedGenerator) Generate(now time.Time) []string {
	t := g.tracker
	graph := t.Schedule.Graph()
	cfg := t.Config.Timeout

	var created []string
	var createdMutex sync.Mutex

	p := pool.New().WithMaxGoroutines(max(g.MaxGoroutines, 1))

	for _, block := range graph.BlocksActiveAt(now, cfg.BeforeStartTimeMinutes*60, 0) {
		if _, held := t.Registry.BlockHolder(block.ID); held {
			continue
		}

		serviceDate, _ := graph.ServiceDateForBlock(block, now, cfg.BeforeStartTimeMinutes*60, 0)
		start := graph.Epoch(serviceDate, block.StartTime)
		if cfg.AfterStartTimeMinutes >= 0 && now.Sub(start) > time.Duration(cfg.AfterStartTimeMinutes)*time.Minute {
			continue
		}

		p.Go(func() {
			if g.create(graph, block, serviceDate, start, now) {
				createdMutex.Lock()
				created = append(created, SchedBasedVehicleID(block.ID))
				createdMutex.Unlock()
			}
		})
	}
	p.Wait()

	return created
}

func (g *SchedBasedGenerator) create(graph *schedule.Graph, block *ctdf.Block, serviceDate time.Time, start time.Time, now time.Time) bool {
	t := g.tracker

	trips := graph.TripsForBlock(block.ID)
	if len(trips) == 0 {
		return false
	}
	stopPaths := graph.StopPathsFor(trips[0].ID)
	if len(stopPaths) == 0 {
		return false
	}
	firstStop := stopPaths[0]
	segments := firstStop.Segments()

	vehicleID := SchedBasedVehicleID(block.ID)
	state := t.Registry.Lock(vehicleID)
	defer state.Unlock()

	if state.IsPredictable() {
		return false
	}

	report := &ctdf.AvlReport{
		VehicleID:      vehicleID,
		Time:           start,
		Location:       firstStop.EndLocation(),
		AssignmentID:   block.ID,
		AssignmentType: ctdf.AssignmentTypeBlockID,
		Source:         schedBasedSource,
		TimeProcessed:  now,
	}

	match := &ctdf.TemporalMatch{
		BlockID: block.ID,
		TripID:  trips[0].ID,
		Indices: ctdf.Indices{
			TripIndex:     0,
			StopPathIndex: 0,
			SegmentIndex:  max(len(segments)-1, 0),
		},
		StopPathID:            firstStop.ID,
		DistanceAlongStopPath: firstStop.Length(),
		AtStop:                true,
		AtStopPathIndex:       0,
		AtStopID:              firstStop.StopID,
		AvlTime:               start,
	}
	if len(segments) > 0 {
		match.DistanceAlongSegment = segments[len(segments)-1].Length()
	}

	state.ForSchedBasedPreds = true
	state.Canceled = false
	state.AssignmentID = block.ID
	state.AssignmentType = ctdf.AssignmentTypeBlockID
	state.RecordAvlReport(report)
	t.Registry.SetLastReport(*report)

	if displaced := t.Manager.ApplyMatch(state, match, block, trips[0], serviceDate, now); displaced != "" {
		// a real vehicle took the block between the check and the match
		t.Registry.AssignBlock(block.ID, displaced, false)
		t.Manager.MakeUnpredictable(state, ctdf.VehicleEventAssignmentGrabbed,
			fmt.Sprintf("Assignment %s already held by vehicle %s", block.ID, displaced), now)
		return false
	}

	log.Info().Str("vehicle", vehicleID).Str("block", block.ID).Time("start", start).Msg("Created schedule based vehicle")

	t.predict(state)
	return true
}
