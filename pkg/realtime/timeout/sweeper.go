package timeout

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/realtime/vehiclestate"
	"github.com/travigo/avlengine/pkg/schedule"
	"github.com/travigo/avlengine/pkg/stats"
)

// Sweeper periodically looks for vehicles that stopped reporting
type Sweeper struct {
	Config   *config.Config
	Registry *vehiclestate.Registry
	Manager  *vehiclestate.Manager
	Schedule *schedule.Provider
	Metrics  *stats.Metrics

	// Resubmit reprocesses the last report of a canceled schedule based vehicle. Called without any
	// vehicle lock held.
	Resubmit func(report ctdf.AvlReport)

	Now func() time.Time
}

func NewSweeper(cfg *config.Config, manager *vehiclestate.Manager, metrics *stats.Metrics) *Sweeper {
	return &Sweeper{
		Config:   cfg,
		Registry: manager.Registry,
		Manager:  manager,
		Schedule: manager.Schedule,
		Metrics:  metrics,
		Now:      time.Now,
	}
}

// Run sweeps every polling period until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.Config.Timeout.PollingRateSecs) * time.Second)
	defer ticker.Stop()

	log.Info().Int("pollingrate", s.Config.Timeout.PollingRateSecs).Msg("Starting timeout sweeper")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.HandlePossibleTimeouts(s.Now())
		}
	}
}

// HandlePossibleTimeouts checks every vehicle in the sweep registry once
func (s *Sweeper) HandlePossibleTimeouts(now time.Time) {
	startTime := time.Now()

	for _, report := range s.Registry.LastReports() {
		state, ok := s.Registry.LockExisting(report.VehicleID)
		if !ok {
			s.Registry.RemoveLastReport(report.VehicleID)
			continue
		}

		resubmit := s.handleVehicle(state, now)
		state.Unlock()

		if resubmit != nil && s.Resubmit != nil {
			s.Resubmit(*resubmit)
		}
	}

	s.Metrics.SweepDuration(time.Since(startTime))
}

func (s *Sweeper) handleVehicle(state *vehiclestate.VehicleRuntimeState, now time.Time) *ctdf.AvlReport {
	switch {
	case !state.IsPredictable():
		s.handleNotPredictable(state, now)
	case state.ForSchedBasedPreds:
		return s.handleSchedBased(state, now)
	case state.AtWaitStop(s.stopPaths(state)):
		s.handleWaitStop(state, now)
	default:
		s.handlePredictable(state, now)
	}
	return nil
}

func (s *Sweeper) stopPaths(state *vehiclestate.VehicleRuntimeState) []*ctdf.StopPath {
	if state.Trip == nil {
		return nil
	}
	return s.Schedule.Graph().StopPathsFor(state.Trip.ID)
}

func (s *Sweeper) allowableNoAvl() time.Duration {
	return time.Duration(s.Config.Timeout.AllowableNoAvlSecs) * time.Second
}

func (s *Sweeper) handleNotPredictable(state *vehiclestate.VehicleRuntimeState, now time.Time) {
	if !s.Config.Timeout.RemoveTimedOutVehiclesFromVehicleDataCache {
		s.Registry.RemoveLastReport(state.VehicleID)
		return
	}

	if now.Sub(state.LastAvlTime()) > s.allowableNoAvl() {
		log.Info().Str("vehicle", state.VehicleID).Msg("Removing timed out unpredictable vehicle")
		s.Registry.RemoveLastReport(state.VehicleID)
		s.Registry.Remove(state.VehicleID)
	}
}

func (s *Sweeper) handlePredictable(state *vehiclestate.VehicleRuntimeState, now time.Time) {
	sinceReport := now.Sub(state.LastAvlTime())
	if sinceReport <= s.allowableNoAvl() {
		return
	}

	s.timeout(state, now, fmt.Sprintf(
		"Vehicle timed out because it has not reported in %s while allowable time without an AVL report is %s",
		sinceReport, s.allowableNoAvl()))
}

func (s *Sweeper) handleWaitStop(state *vehiclestate.VehicleRuntimeState, now time.Time) {
	// no fixed departure to compare against
	if state.Trip.NoSchedule {
		return
	}

	sinceReport := now.Sub(state.LastAvlTime())
	if sinceReport <= s.allowableNoAvl() {
		return
	}

	departure, ok := s.Manager.ScheduledWaitStopDeparture(state)
	if !ok {
		return
	}

	allowedAfterDeparture := time.Duration(s.Config.Timeout.AllowableNoAvlAfterSchedDepartSecs) * time.Second
	if now.Sub(departure) <= allowedAfterDeparture {
		return
	}

	s.timeout(state, now, fmt.Sprintf(
		"Vehicle timed out because it has not reported in %s and it is %s since the scheduled departure %s from wait stop %s",
		sinceReport, now.Sub(departure), departure.Format(time.RFC3339), state.Match.AtStopID))
}

func (s *Sweeper) handleSchedBased(state *vehiclestate.VehicleRuntimeState, now time.Time) *ctdf.AvlReport {
	if state.Block == nil {
		log.Error().Str("vehicle", state.VehicleID).Msg("Schedule based vehicle without a block")
		return nil
	}

	graph := s.Schedule.Graph()
	beforeStart := s.Config.Timeout.BeforeStartTimeMinutes * 60
	if _, active := graph.ServiceDateForBlock(state.Block, now, beforeStart, 0); !active {
		s.timeout(state, now, fmt.Sprintf(
			"Schedule based predictions removed for block %s because the block is no longer active", state.Block.ID))
		return nil
	}

	if s.Config.Timeout.AfterStartTimeMinutes < 0 {
		return nil
	}

	departure, ok := s.Manager.ScheduledWaitStopDeparture(state)
	if !ok {
		return nil
	}

	allowed := time.Duration(s.Config.Timeout.AfterStartTimeMinutes) * time.Minute
	if now.Sub(departure) <= allowed {
		return nil
	}

	description := fmt.Sprintf(
		"Schedule based predictions removed for block %s because it is %s since the scheduled start %s",
		state.Block.ID, now.Sub(departure), departure.Format(time.RFC3339))

	if !s.Config.Timeout.CancelTripOnTimeout {
		s.timeout(state, now, description)
		return nil
	}

	if state.Canceled || state.AvlReport == nil {
		return nil
	}

	log.Info().Str("vehicle", state.VehicleID).Str("block", state.Block.ID).Msg("Canceling schedule based trip")
	state.Canceled = true

	report := *state.AvlReport
	return &report
}

func (s *Sweeper) timeout(state *vehiclestate.VehicleRuntimeState, now time.Time, description string) {
	s.Manager.MakeUnpredictable(state, ctdf.VehicleEventTimeout, description, now)
	log.Info().Str("vehicle", state.VehicleID).Msg(description)

	s.Registry.RemoveLastReport(state.VehicleID)

	if s.Config.Timeout.RemoveTimedOutVehiclesFromVehicleDataCache {
		s.Registry.Remove(state.VehicleID)
	}
}
