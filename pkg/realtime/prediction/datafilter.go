package prediction

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
)

// DataFilter decides which observed travel and dwell times are trustworthy enough to feed the models
type DataFilter struct {
	Config config.PredictionConfig
}

func adherence(event ctdf.ArrivalDeparture) (time.Duration, bool) {
	if event.ScheduledTime.IsZero() {
		return 0, false
	}
	return event.ScheduledTime.Sub(event.Time), true
}

func (f DataFilter) adherenceWithinBounds(event ctdf.ArrivalDeparture) bool {
	value, ok := adherence(event)
	if !ok {
		return true
	}
	min := time.Duration(f.Config.MinSchedAdherenceAllowedSecs) * time.Second
	max := time.Duration(f.Config.MaxSchedAdherenceAllowedSecs) * time.Second
	return value >= min && value <= max
}

// AcceptTravelTime is false when the travel time between departure and arrival should be ignored
func (f DataFilter) AcceptTravelTime(departure ctdf.ArrivalDeparture, arrival ctdf.ArrivalDeparture) bool {
	travelTime := arrival.Time.Sub(departure.Time).Milliseconds()

	if !f.adherenceWithinBounds(departure) || !f.adherenceWithinBounds(arrival) {
		log.Debug().Str("vehicle", arrival.VehicleID).Str("stop", arrival.StopID).Msg("Travel time schedule adherence outside allowable range")
		return false
	}
	if travelTime <= int64(f.Config.MinTravelTimeAllowedInModel) || travelTime >= int64(f.Config.MaxTravelTimeAllowedInModel) {
		log.Debug().Str("vehicle", arrival.VehicleID).Int64("traveltime", travelTime).Msg("Travel time outside allowable range")
		return false
	}
	return true
}

// AcceptDwellTime is false when the dwell time between arrival and departure should be ignored
func (f DataFilter) AcceptDwellTime(arrival ctdf.ArrivalDeparture, departure ctdf.ArrivalDeparture) bool {
	dwellTime := departure.Time.Sub(arrival.Time).Milliseconds()

	if !f.adherenceWithinBounds(departure) || !f.adherenceWithinBounds(arrival) {
		log.Debug().Str("vehicle", departure.VehicleID).Str("stop", departure.StopID).Msg("Dwell time schedule adherence outside allowable range")
		return false
	}
	if dwellTime <= int64(f.Config.Rls.MinDwellTimeAllowedInModel) || dwellTime >= int64(f.Config.Rls.MaxDwellTimeAllowedInModel) {
		log.Debug().Str("vehicle", departure.VehicleID).Int64("dwelltime", dwellTime).Msg("Dwell time outside allowable range")
		return false
	}
	return true
}

func (f DataFilter) AcceptHeadway(headway time.Duration) bool {
	msec := headway.Milliseconds()
	return msec > int64(f.Config.Rls.MinHeadwayAllowedInModel) && msec < int64(f.Config.Rls.MaxHeadwayAllowedInModel)
}
