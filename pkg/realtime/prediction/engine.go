package prediction

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/realtime/vehiclestate"
	"github.com/travigo/avlengine/pkg/schedule"
	"github.com/travigo/avlengine/pkg/stats"
)

const errorCacheTimeout = 200 * time.Millisecond

// Engine generates arrival and departure predictions for the stops ahead of a predictable vehicle
type Engine struct {
	Config   *config.Config
	Schedule *schedule.Provider
	History  *History
	Errors   ErrorCache
	Bias     BiasAdjuster
	Manager  *vehiclestate.Manager
	Metrics  *stats.Metrics

	Now func() time.Time
}

func NewEngine(cfg *config.Config, provider *schedule.Provider, history *History, errors ErrorCache, manager *vehiclestate.Manager, metrics *stats.Metrics) *Engine {
	if errors == nil {
		errors = NewMemoryErrorCache()
	}

	return &Engine{
		Config:   cfg,
		Schedule: provider,
		History:  history,
		Errors:   errors,
		Bias:     NewBiasAdjuster(cfg.Prediction.Bias),
		Manager:  manager,
		Metrics:  metrics,
		Now:      time.Now,
	}
}

type estimate struct {
	duration  time.Duration
	algorithm ctdf.PredictionAlgorithm
}

type run struct {
	engine *Engine
	state  *vehiclestate.VehicleRuntimeState
	graph  *schedule.Graph

	avlTime    time.Time
	horizonEnd time.Time
	created    time.Time

	affectedByWaitStop bool
	predictions        []ctdf.Prediction
}

// Predict returns predictions from the vehicle's current match onwards, continuing into later trips of
// the block until the prediction horizon is reached. The caller must hold the vehicle's lock.
func (e *Engine) Predict(state *vehiclestate.VehicleRuntimeState) []ctdf.Prediction {
	if !state.IsPredictable() || state.Match == nil || state.Block == nil || state.AvlReport == nil {
		return nil
	}

	r := &run{
		engine:     e,
		state:      state,
		graph:      e.Schedule.Graph(),
		avlTime:    state.AvlReport.Time,
		horizonEnd: state.AvlReport.Time.Add(time.Duration(e.Config.Core.MaxPredictionsTimeSecs) * time.Second),
		created:    e.Now(),
	}
	r.generate()

	e.Metrics.PredictionsGenerated(len(r.predictions))
	log.Debug().
		Str("vehicle", state.VehicleID).
		Str("block", state.Block.ID).
		Int("count", len(r.predictions)).
		Msg("Generated predictions")

	return r.predictions
}

func (r *run) generate() {
	match := *r.state.Match
	block := r.state.Block
	current := r.avlTime

	for tripIndex := match.TripIndex; tripIndex < len(block.TripIDs); tripIndex++ {
		trip := r.graph.Trip(block.TripIDs[tripIndex])
		if trip == nil {
			return
		}
		stopPaths := r.graph.StopPathsFor(trip.ID)
		if len(stopPaths) == 0 {
			return
		}
		travelTimes := r.graph.TravelTimesFor(trip.ID)

		start := 0
		if tripIndex == match.TripIndex {
			start = match.StopPathIndex
		}

		for index := start; index < len(stopPaths); index++ {
			stopPath := stopPaths[index]
			profile := profileFor(travelTimes, index)

			first := tripIndex == match.TripIndex && index == start
			atStopEnd := first && match.AtStop && match.AtStopPathIndex == index

			// still at the wait stop that began the matched stop path
			if first && match.AtStop && match.AtStopPathIndex == index-1 {
				if departure, ok := r.waitStopDeparture(trip, stopPaths[index-1], index-1); ok && departure.After(current) {
					prediction := r.newPrediction(trip, stopPaths[index-1], index-1)
					prediction.Departure = departure
					prediction.IsWaitStop = true
					if !r.add(prediction) {
						return
					}
					current = departure
					r.affectedByWaitStop = true
				}
			}

			arrival := current
			var travel estimate
			if !atStopEnd {
				travel = r.engine.travelTime(r.state, trip, index, stopPath, profile)
				if first {
					travel = r.engine.partialTravelTime(travel, match.DistanceAlongStopPath, stopPath, profile)
				}
				arrival = current.Add(travel.duration)
			}
			if arrival.After(r.horizonEnd) {
				return
			}

			prediction := r.newPrediction(trip, stopPath, index)
			if !atStopEnd {
				prediction.Arrival = r.biased(arrival)
				prediction.TravelTimeAlgorithm = travel.algorithm
			}

			lastStop := index == len(stopPaths)-1
			departure := arrival
			if !lastStop {
				if waitDeparture, ok := r.waitStopDeparture(trip, stopPath, index); ok {
					earliest := arrival
					if !r.engine.Config.Prediction.UseExactSchedTimeForWaitStops {
						earliest = arrival.Add(r.engine.dwellTime(r.state, trip, index, stopPath, profile, arrival).duration)
					}
					departure = waitDeparture
					if departure.Before(earliest) {
						departure = earliest
					}
					prediction.IsWaitStop = true
					prediction.Departure = departure
				} else {
					dwell := r.engine.dwellTime(r.state, trip, index, stopPath, profile, arrival)
					departure = arrival.Add(dwell.duration)
					prediction.Departure = r.biased(departure)
					prediction.DwellTimeAlgorithm = dwell.algorithm
				}
			}

			if !lastStop || r.engine.Config.Prediction.ReturnArrivalPredictionForEndOfTrip {
				if !r.add(prediction) {
					return
				}
			}

			if prediction.IsWaitStop {
				r.affectedByWaitStop = true
			}
			current = departure
		}
	}
}

// add appends the prediction unless it falls beyond the horizon
func (r *run) add(prediction ctdf.Prediction) bool {
	if prediction.Time().After(r.horizonEnd) {
		return false
	}
	r.predictions = append(r.predictions, prediction)
	return true
}

func (r *run) newPrediction(trip *ctdf.Trip, stopPath *ctdf.StopPath, index int) ctdf.Prediction {
	return ctdf.Prediction{
		VehicleID:            r.state.VehicleID,
		StopID:               stopPath.StopID,
		StopPathIndex:        index,
		TripID:               trip.ID,
		BlockID:              r.state.Block.ID,
		RouteID:              trip.RouteID,
		AvlTime:              r.avlTime,
		CreatedTime:          r.created,
		AffectedByWaitStop:   r.affectedByWaitStop,
		SchedBasedPrediction: r.state.ForSchedBasedPreds,
		Canceled:             r.state.Canceled,
		TravelTimeAlgorithm:  ctdf.PredictionAlgorithmSchedule,
		DwellTimeAlgorithm:   ctdf.PredictionAlgorithmSchedule,
	}
}

func (r *run) biased(t time.Time) time.Time {
	return r.avlTime.Add(r.engine.Bias.Adjust(t.Sub(r.avlTime)))
}

// waitStopDeparture is the scheduled departure of a wait stop or layover on a scheduled trip
func (r *run) waitStopDeparture(trip *ctdf.Trip, stopPath *ctdf.StopPath, index int) (time.Time, bool) {
	if trip.NoSchedule || !(stopPath.IsWaitStop || stopPath.IsLayover) {
		return time.Time{}, false
	}
	scheduleTime, ok := trip.ScheduleTimeAt(index)
	if !ok || scheduleTime.Time() == ctdf.NoTime {
		return time.Time{}, false
	}
	return r.graph.Epoch(r.state.ServiceDate, scheduleTime.Time()), true
}

func profileFor(travelTimes *ctdf.TravelTimesForTrip, index int) *ctdf.TravelTimesForStopPath {
	if travelTimes == nil || index >= len(travelTimes.StopPaths) {
		return nil
	}
	return &travelTimes.StopPaths[index]
}

func (e *Engine) scheduledTravelTime(stopPath *ctdf.StopPath, profile *ctdf.TravelTimesForStopPath) time.Duration {
	if profile != nil {
		return time.Duration(profile.TravelTimeMsec()) * time.Millisecond
	}
	return time.Duration(stopPath.Length() / e.Config.TravelTimes.DefaultSpeedMps * float64(time.Second))
}

// travelTime picks Kalman, then the historical average and finally the schedule
func (e *Engine) travelTime(state *vehiclestate.VehicleRuntimeState, trip *ctdf.Trip, index int, stopPath *ctdf.StopPath, profile *ctdf.TravelTimesForStopPath) estimate {
	cfg := e.Config.Prediction
	result := estimate{duration: e.scheduledTravelTime(stopPath, profile), algorithm: ctdf.PredictionAlgorithmSchedule}

	if e.History == nil || index == 0 {
		return result
	}

	if cfg.Kalman.UseAverage {
		average, count := HistoricalAverage(e.History.TravelTimes(trip.ID, index), cfg.FractionLimit)
		if count > 0 && count >= cfg.AverageMinDays {
			result = estimate{duration: msec(average), algorithm: ctdf.PredictionAlgorithmAverage}
		}
	}

	if !cfg.Kalman.Enabled {
		return result
	}

	last, ok := e.History.LastVehicleTravelTime(stopPath.ID, state.ServiceDate, state.VehicleID)
	if !ok {
		return result
	}
	historical := e.History.HistoricalTravelTimes(trip.ID, index, state.ServiceDate, cfg.Kalman.MaxDaysToSearch, cfg.Kalman.MaxDays)
	if len(historical) < cfg.Kalman.MinDays {
		return result
	}

	ctx, cancel := context.WithTimeout(context.Background(), errorCacheTimeout)
	defer cancel()

	lastError, ok := e.Errors.Get(ctx, ErrorKey{TripID: last.TripID, StopPathIndex: index})
	if !ok {
		lastError = cfg.Kalman.InitialErrorValue
	}

	kalman, err := KalmanPredict(float64(last.TravelTime().Milliseconds()), historical, lastError)
	if err != nil {
		return result
	}
	e.Errors.Put(ctx, ErrorKey{TripID: trip.ID, StopPathIndex: index}, kalman.FilterError)

	e.checkVariation(state, stopPath, kalman.Prediction, float64(result.duration.Milliseconds()))

	return estimate{duration: msec(kalman.Prediction), algorithm: ctdf.PredictionAlgorithmKalman}
}

// partialTravelTime scales the travel time to what remains of the stop path
func (e *Engine) partialTravelTime(full estimate, distanceAlong float64, stopPath *ctdf.StopPath, profile *ctdf.TravelTimesForStopPath) estimate {
	length := stopPath.Length()
	if length <= 0 {
		return full
	}

	useProfile := full.algorithm == ctdf.PredictionAlgorithmSchedule ||
		(full.algorithm == ctdf.PredictionAlgorithmKalman && !e.Config.Prediction.Kalman.UseKalmanForPartialStopPaths)
	if useProfile && profile != nil {
		return estimate{
			duration:  time.Duration(profile.TravelTimeAfter(distanceAlong, length)) * time.Millisecond,
			algorithm: full.algorithm,
		}
	}

	fraction := math.Max(0, math.Min(1, (length-distanceAlong)/length))
	return estimate{duration: time.Duration(float64(full.duration) * fraction), algorithm: full.algorithm}
}

// dwellTime picks the headway dwell model, then the historical average and finally the schedule
func (e *Engine) dwellTime(state *vehiclestate.VehicleRuntimeState, trip *ctdf.Trip, index int, stopPath *ctdf.StopPath, profile *ctdf.TravelTimesForStopPath, arrival time.Time) estimate {
	cfg := e.Config.Prediction

	scheduled := e.Config.TravelTimes.DefaultStopTimeMsec
	if profile != nil {
		scheduled = profile.StopTimeMsec
	}
	result := estimate{duration: time.Duration(scheduled) * time.Millisecond, algorithm: ctdf.PredictionAlgorithmSchedule}

	if e.History == nil {
		return result
	}

	if cfg.Rls.Enabled {
		if lastArrival, ok := e.History.LastArrivalAt(stopPath.StopID, state.VehicleID, arrival); ok {
			headway := arrival.Sub(lastArrival)
			if e.History.filter.AcceptHeadway(headway) {
				if dwell, ok := e.History.PredictDwell(trip.ID, index, headway, cfg.Rls.MinSamples); ok {
					return estimate{duration: dwell, algorithm: ctdf.PredictionAlgorithmRLS}
				}
			}
		}
	}

	average, count := HistoricalAverage(e.History.DwellTimes(trip.ID, index), cfg.FractionLimit)
	if count > 0 && count >= cfg.AverageMinDays {
		return estimate{duration: msec(average), algorithm: ctdf.PredictionAlgorithmAverage}
	}

	return result
}

// checkVariation records an event when the Kalman prediction and the alternative disagree by more
// than both the percentage and the absolute thresholds
func (e *Engine) checkVariation(state *vehiclestate.VehicleRuntimeState, stopPath *ctdf.StopPath, kalman float64, alternative float64) {
	if alternative <= 0 || e.Manager == nil {
		return
	}

	difference := math.Abs(kalman - alternative)
	percentage := 100 * difference / alternative
	if difference <= float64(e.Config.Prediction.Kalman.ThresholdForDifferenceEventLogMsec) ||
		percentage <= e.Config.Prediction.Kalman.PercentagePredictionMethodDifference {
		return
	}

	description := fmt.Sprintf("Kalman predicts %.0f msec to stop %s, alternative predicts %.0f msec", kalman, stopPath.StopID, alternative)
	log.Warn().Str("vehicle", state.VehicleID).Str("stoppath", stopPath.ID).Msg(description)
	e.Manager.EmitEvent(state, ctdf.VehicleEventPredictionVariation, description, e.Now())
}

func msec(value float64) time.Duration {
	return time.Duration(value * float64(time.Millisecond))
}
