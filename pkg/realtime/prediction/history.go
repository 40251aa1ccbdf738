package prediction

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
	"golang.org/x/exp/slices"
)

const (
	recentTravelSamples = 5
	recentStopArrivals  = 10
)

type pathKey struct {
	TripID        string
	StopPathIndex int
}

// TravelSample is one observed traversal of a stop path, from departing the previous stop to
// arriving at the stop
type TravelSample struct {
	VehicleID     string
	TripID        string
	StopPathIndex int
	StopPathID    string
	ServiceDate   time.Time
	Departure     time.Time
	Arrival       time.Time
}

func (s TravelSample) TravelTime() time.Duration {
	return s.Arrival.Sub(s.Departure)
}

type pendingArrival struct {
	event   ctdf.ArrivalDeparture
	headway time.Duration
}

// History keeps the recent observed travel, dwell and headway samples that the adaptive models
// learn from. It is fed with every determined arrival and departure.
type History struct {
	mutex  sync.RWMutex
	config config.PredictionConfig
	filter DataFilter

	travel       map[pathKey][]TravelSample
	recentByPath map[string][]TravelSample
	dwell        map[pathKey][]float64
	models       map[pathKey]*DwellModel

	lastDeparture map[string]ctdf.ArrivalDeparture
	lastArrival   map[string]pendingArrival
	stopArrivals  map[string][]ctdf.ArrivalDeparture
}

func NewHistory(cfg config.PredictionConfig) *History {
	return &History{
		config:        cfg,
		filter:        DataFilter{Config: cfg},
		travel:        map[pathKey][]TravelSample{},
		recentByPath:  map[string][]TravelSample{},
		dwell:         map[pathKey][]float64{},
		models:        map[pathKey]*DwellModel{},
		lastDeparture: map[string]ctdf.ArrivalDeparture{},
		lastArrival:   map[string]pendingArrival{},
		stopArrivals:  map[string][]ctdf.ArrivalDeparture{},
	}
}

func daysBetween(a time.Time, b time.Time) int {
	return int(math.Round(a.Sub(b).Hours() / 24))
}

func (h *History) Add(event ctdf.ArrivalDeparture) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if event.IsArrival() {
		h.addArrival(event)
	} else {
		h.addDeparture(event)
	}
}

func (h *History) addArrival(arrival ctdf.ArrivalDeparture) {
	pending := pendingArrival{event: arrival, headway: -1}

	for i := len(h.stopArrivals[arrival.StopID]) - 1; i >= 0; i-- {
		previous := h.stopArrivals[arrival.StopID][i]
		if previous.VehicleID == arrival.VehicleID || previous.TripID == arrival.TripID || !previous.Time.Before(arrival.Time) {
			continue
		}
		headway := arrival.Time.Sub(previous.Time)
		if h.filter.AcceptHeadway(headway) {
			pending.headway = headway
		}
		break
	}
	h.lastArrival[arrival.VehicleID] = pending

	arrivals := append(h.stopArrivals[arrival.StopID], arrival)
	if len(arrivals) > recentStopArrivals {
		arrivals = arrivals[len(arrivals)-recentStopArrivals:]
	}
	h.stopArrivals[arrival.StopID] = arrivals

	departure, ok := h.lastDeparture[arrival.VehicleID]
	if !ok || departure.TripID != arrival.TripID || departure.StopPathIndex != arrival.StopPathIndex-1 {
		return
	}
	if !h.filter.AcceptTravelTime(departure, arrival) {
		return
	}

	sample := TravelSample{
		VehicleID:     arrival.VehicleID,
		TripID:        arrival.TripID,
		StopPathIndex: arrival.StopPathIndex,
		StopPathID:    arrival.StopPathID,
		ServiceDate:   arrival.ServiceDate,
		Departure:     departure.Time,
		Arrival:       arrival.Time,
	}
	h.addTravelSample(sample)
}

func (h *History) addTravelSample(sample TravelSample) {
	key := pathKey{TripID: sample.TripID, StopPathIndex: sample.StopPathIndex}

	samples := h.travel[key][:0:0]
	for _, existing := range h.travel[key] {
		if existing.ServiceDate.Equal(sample.ServiceDate) {
			continue
		}
		if daysBetween(sample.ServiceDate, existing.ServiceDate) > h.config.Kalman.MaxDaysToSearch {
			continue
		}
		samples = append(samples, existing)
	}
	h.travel[key] = append(samples, sample)

	recent := append(h.recentByPath[sample.StopPathID], sample)
	if len(recent) > recentTravelSamples {
		recent = recent[len(recent)-recentTravelSamples:]
	}
	h.recentByPath[sample.StopPathID] = recent
}

func (h *History) addDeparture(departure ctdf.ArrivalDeparture) {
	h.lastDeparture[departure.VehicleID] = departure

	pending, ok := h.lastArrival[departure.VehicleID]
	if !ok || pending.event.TripID != departure.TripID || pending.event.StopPathIndex != departure.StopPathIndex {
		return
	}
	delete(h.lastArrival, departure.VehicleID)

	if !h.filter.AcceptDwellTime(pending.event, departure) {
		return
	}

	dwell := departure.Time.Sub(pending.event.Time)
	key := pathKey{TripID: departure.TripID, StopPathIndex: departure.StopPathIndex}

	samples := append(h.dwell[key], float64(dwell.Milliseconds()))
	if len(samples) > h.config.DwellSampleSize {
		samples = samples[len(samples)-h.config.DwellSampleSize:]
	}
	h.dwell[key] = samples

	if pending.headway < 0 {
		return
	}
	model, ok := h.models[key]
	if !ok {
		model = NewDwellModel(h.config.Rls.Lambda)
		h.models[key] = model
	}
	model.Add(pending.headway, dwell)

	log.Debug().
		Str("trip", key.TripID).
		Int("stoppath", key.StopPathIndex).
		Dur("headway", pending.headway).
		Dur("dwell", dwell).
		Msg("Dwell model updated")
}

// LastVehicleTravelTime is the most recent traversal of the stop path on the service day by a vehicle
// other than excludeVehicle
func (h *History) LastVehicleTravelTime(stopPathID string, serviceDate time.Time, excludeVehicle string) (TravelSample, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	recent := h.recentByPath[stopPathID]
	for i := len(recent) - 1; i >= 0; i-- {
		sample := recent[i]
		if sample.VehicleID != excludeVehicle && sample.ServiceDate.Equal(serviceDate) {
			return sample, true
		}
	}
	return TravelSample{}, false
}

// HistoricalTravelTimes returns msec travel times of the trip's stop path on previous service days,
// most recent first. Only days within maxDaysToSearch of serviceDate are considered and at most
// maxDays values are returned.
func (h *History) HistoricalTravelTimes(tripID string, stopPathIndex int, serviceDate time.Time, maxDaysToSearch int, maxDays int) []float64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	candidates := []TravelSample{}
	for _, sample := range h.travel[pathKey{TripID: tripID, StopPathIndex: stopPathIndex}] {
		days := daysBetween(serviceDate, sample.ServiceDate)
		if days > 0 && days <= maxDaysToSearch {
			candidates = append(candidates, sample)
		}
	}
	slices.SortFunc(candidates, func(a, b TravelSample) int {
		return b.ServiceDate.Compare(a.ServiceDate)
	})

	values := []float64{}
	for _, sample := range candidates {
		if len(values) == maxDays {
			break
		}
		values = append(values, float64(sample.TravelTime().Milliseconds()))
	}
	return values
}

// TravelTimes returns every stored msec travel time for the trip's stop path
func (h *History) TravelTimes(tripID string, stopPathIndex int) []float64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	samples := h.travel[pathKey{TripID: tripID, StopPathIndex: stopPathIndex}]
	values := make([]float64, 0, len(samples))
	for _, sample := range samples {
		values = append(values, float64(sample.TravelTime().Milliseconds()))
	}
	return values
}

func (h *History) DwellTimes(tripID string, stopPathIndex int) []float64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return append([]float64(nil), h.dwell[pathKey{TripID: tripID, StopPathIndex: stopPathIndex}]...)
}

// PredictDwell uses the trained dwell model for the stop, false when there is no model or it has
// seen fewer than minSamples samples
func (h *History) PredictDwell(tripID string, stopPathIndex int, headway time.Duration, minSamples int) (time.Duration, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	model, ok := h.models[pathKey{TripID: tripID, StopPathIndex: stopPathIndex}]
	if !ok || model.Samples() < minSamples {
		return 0, false
	}
	return model.Predict(headway), true
}

// LastArrivalAt is the latest arrival at the stop before the given time by another vehicle
func (h *History) LastArrivalAt(stopID string, excludeVehicle string, before time.Time) (time.Time, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	arrivals := h.stopArrivals[stopID]
	for i := len(arrivals) - 1; i >= 0; i-- {
		if arrivals[i].VehicleID != excludeVehicle && arrivals[i].Time.Before(before) {
			return arrivals[i].Time, true
		}
	}
	return time.Time{}, false
}

// Forget drops the in-progress arrival and departure of a vehicle, used when it stops being tracked
func (h *History) Forget(vehicleID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	delete(h.lastArrival, vehicleID)
	delete(h.lastDeparture, vehicleID)
}
