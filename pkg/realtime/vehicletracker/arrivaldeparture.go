package vehicletracker

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/realtime/vehiclestate"
	"github.com/travigo/avlengine/pkg/schedule"
)

// stopKey identifies the stop at the end of a stop path within a block
type stopKey struct {
	trip     int
	stopPath int
}

func (k stopKey) before(other stopKey) bool {
	if k.trip != other.trip {
		return k.trip < other.trip
	}
	return k.stopPath < other.stopPath
}

// reachedStop is the last stop the vehicle has arrived at
func reachedStop(match *ctdf.TemporalMatch) stopKey {
	if match.AtStop {
		return stopKey{trip: match.TripIndex, stopPath: match.AtStopPathIndex}
	}
	return stopKey{trip: match.TripIndex, stopPath: match.StopPathIndex - 1}
}

// departedStop is the last stop the vehicle has left
func departedStop(match *ctdf.TemporalMatch) stopKey {
	if match.AtStop {
		return stopKey{trip: match.TripIndex, stopPath: match.AtStopPathIndex - 1}
	}
	return stopKey{trip: match.TripIndex, stopPath: match.StopPathIndex - 1}
}

type interpolation struct {
	from, to         float64
	fromTime, toTime time.Time
}

// at is the time the vehicle passed the distance along the block, assuming constant speed between
// the two matches
func (i interpolation) at(distance float64) time.Time {
	if i.to <= i.from {
		return i.toTime
	}

	ratio := (distance - i.from) / (i.to - i.from)
	switch {
	case ratio <= 0:
		return i.fromTime
	case ratio >= 1:
		return i.toTime
	}
	return i.fromTime.Add(time.Duration(ratio * float64(i.toTime.Sub(i.fromTime))))
}

// generateArrivalDepartures determines the stops passed between two matches on the same block and
// feeds the resulting arrivals and departures to the history and the sink
func (t *Tracker) generateArrivalDepartures(state *vehiclestate.VehicleRuntimeState, previous *ctdf.TemporalMatch, current *ctdf.TemporalMatch) []ctdf.ArrivalDeparture {
	if previous == nil || previous.BlockID != current.BlockID || current.Indices.IsBefore(previous.Indices) {
		return nil
	}

	graph := t.Schedule.Graph()
	trips := graph.TripsForBlock(current.BlockID)

	reachedBefore, reachedNow := reachedStop(previous), reachedStop(current)
	departedBefore, departedNow := departedStop(previous), departedStop(current)

	path := interpolation{
		from:     graph.DistanceAlongBlock(previous.BlockID, previous.TripIndex, previous.StopPathIndex, previous.DistanceAlongStopPath),
		to:       graph.DistanceAlongBlock(current.BlockID, current.TripIndex, current.StopPathIndex, current.DistanceAlongStopPath),
		fromTime: previous.AvlTime,
		toTime:   current.AvlTime,
	}

	var generated []ctdf.ArrivalDeparture

	for tripIndex := departedBefore.trip; tripIndex <= reachedNow.trip && tripIndex < len(trips); tripIndex++ {
		if tripIndex < 0 {
			continue
		}
		trip := trips[tripIndex]
		stopPaths := graph.StopPathsFor(trip.ID)

		for index, stopPath := range stopPaths {
			key := stopKey{trip: tripIndex, stopPath: index}
			arrived := reachedBefore.before(key) && !reachedNow.before(key)
			departed := departedBefore.before(key) && !departedNow.before(key)
			if !arrived && !departed {
				continue
			}

			at := path.at(graph.DistanceAlongBlock(current.BlockID, tripIndex, index, stopPath.Length()))

			if arrived {
				generated = append(generated, t.newArrivalDeparture(graph, state, trip, tripIndex, stopPath, index, ctdf.ArrivalDepartureKindArrival, at, current.AvlTime))
			}
			if departed {
				generated = append(generated, t.newArrivalDeparture(graph, state, trip, tripIndex, stopPath, index, ctdf.ArrivalDepartureKindDeparture, at, current.AvlTime))
			}
		}
	}

	for _, arrivalDeparture := range generated {
		t.History.Add(arrivalDeparture)
		t.Sink.RecordArrivalDeparture(arrivalDeparture)

		log.Debug().
			Str("vehicle", arrivalDeparture.VehicleID).
			Str("kind", string(arrivalDeparture.Kind)).
			Str("stop", arrivalDeparture.StopID).
			Time("time", arrivalDeparture.Time).
			Msg("Determined arrival/departure")
	}

	return generated
}

func (t *Tracker) newArrivalDeparture(graph *schedule.Graph, state *vehiclestate.VehicleRuntimeState, trip *ctdf.Trip, tripIndex int, stopPath *ctdf.StopPath, index int, kind ctdf.ArrivalDepartureKind, at time.Time, avlTime time.Time) ctdf.ArrivalDeparture {
	arrivalDeparture := ctdf.ArrivalDeparture{
		Kind:          kind,
		VehicleID:     state.VehicleID,
		Time:          at,
		AvlTime:       avlTime,
		BlockID:       trip.BlockID,
		TripID:        trip.ID,
		TripIndex:     tripIndex,
		StopPathIndex: index,
		StopPathID:    stopPath.ID,
		StopID:        stopPath.StopID,
		RouteID:       trip.RouteID,
		ServiceDate:   state.ServiceDate,
	}

	if scheduleTime, ok := trip.ScheduleTimeAt(index); ok && !trip.NoSchedule {
		secs := scheduleTime.Time()
		if kind == ctdf.ArrivalDepartureKindArrival {
			secs = scheduleTime.ArrivalOrDeparture()
		}
		if secs != ctdf.NoTime {
			arrivalDeparture.ScheduledTime = graph.Epoch(state.ServiceDate, secs)
		}
	}

	return arrivalDeparture
}
