package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/travigo/avlengine/pkg/ctdf"
)

// Sink receives everything the engine wants recorded outside of its own memory. Implementations must
// not block the caller.
type Sink interface {
	RecordEvent(event ctdf.VehicleEvent)
	RecordMatch(match ctdf.Match)
	RecordPrediction(prediction ctdf.Prediction)
	RecordArrivalDeparture(arrivalDeparture ctdf.ArrivalDeparture)
}

type RecordKind string

const (
	RecordKindEvent            RecordKind = "event"
	RecordKindMatch            RecordKind = "match"
	RecordKindPrediction       RecordKind = "prediction"
	RecordKindArrivalDeparture RecordKind = "arrivaldeparture"
)

// Record is the envelope handed to writers
type Record struct {
	Kind      RecordKind `json:"kind"`
	VehicleID string     `json:"vehicleId"`
	Time      time.Time  `json:"time"`
	Payload   any        `json:"payload"`
}

func eventRecord(event ctdf.VehicleEvent) Record {
	return Record{Kind: RecordKindEvent, VehicleID: event.VehicleID, Time: event.Time, Payload: event}
}

func matchRecord(match ctdf.Match) Record {
	return Record{Kind: RecordKindMatch, VehicleID: match.VehicleID, Time: match.Time, Payload: match}
}

func predictionRecord(prediction ctdf.Prediction) Record {
	return Record{Kind: RecordKindPrediction, VehicleID: prediction.VehicleID, Time: prediction.CreatedTime, Payload: prediction}
}

func arrivalDepartureRecord(arrivalDeparture ctdf.ArrivalDeparture) Record {
	return Record{Kind: RecordKindArrivalDeparture, VehicleID: arrivalDeparture.VehicleID, Time: arrivalDeparture.Time, Payload: arrivalDeparture}
}

type wireRecord struct {
	Kind      RecordKind      `json:"kind"`
	VehicleID string          `json:"vehicleId"`
	Time      time.Time       `json:"time"`
	Payload   json.RawMessage `json:"payload"`
}

// DecodeRecord reverses the json encoding of a Record, restoring the typed payload
func DecodeRecord(data []byte) (Record, error) {
	var wire wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return Record{}, err
	}

	record := Record{Kind: wire.Kind, VehicleID: wire.VehicleID, Time: wire.Time}

	var err error
	switch wire.Kind {
	case RecordKindEvent:
		var payload ctdf.VehicleEvent
		err = json.Unmarshal(wire.Payload, &payload)
		record.Payload = payload
	case RecordKindMatch:
		var payload ctdf.Match
		err = json.Unmarshal(wire.Payload, &payload)
		record.Payload = payload
	case RecordKindPrediction:
		var payload ctdf.Prediction
		err = json.Unmarshal(wire.Payload, &payload)
		record.Payload = payload
	case RecordKindArrivalDeparture:
		var payload ctdf.ArrivalDeparture
		err = json.Unmarshal(wire.Payload, &payload)
		record.Payload = payload
	default:
		return Record{}, fmt.Errorf("unknown record kind %q", wire.Kind)
	}

	return record, err
}

// Recorder keeps everything in memory, used by tests and the replay command
type Recorder struct {
	mutex             sync.Mutex
	events            []ctdf.VehicleEvent
	matches           []ctdf.Match
	predictions       []ctdf.Prediction
	arrivalDepartures []ctdf.ArrivalDeparture
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) RecordEvent(event ctdf.VehicleEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, event)
}

func (r *Recorder) RecordMatch(match ctdf.Match) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.matches = append(r.matches, match)
}

func (r *Recorder) RecordPrediction(prediction ctdf.Prediction) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.predictions = append(r.predictions, prediction)
}

func (r *Recorder) RecordArrivalDeparture(arrivalDeparture ctdf.ArrivalDeparture) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.arrivalDepartures = append(r.arrivalDepartures, arrivalDeparture)
}

func (r *Recorder) Events() []ctdf.VehicleEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]ctdf.VehicleEvent(nil), r.events...)
}

// EventsOfType filters the recorded events, optionally for a single vehicle
func (r *Recorder) EventsOfType(eventType ctdf.VehicleEventType, vehicleID string) []ctdf.VehicleEvent {
	var matching []ctdf.VehicleEvent
	for _, event := range r.Events() {
		if event.Type == eventType && (vehicleID == "" || event.VehicleID == vehicleID) {
			matching = append(matching, event)
		}
	}
	return matching
}

func (r *Recorder) Matches() []ctdf.Match {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]ctdf.Match(nil), r.matches...)
}

func (r *Recorder) Predictions() []ctdf.Prediction {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]ctdf.Prediction(nil), r.predictions...)
}

func (r *Recorder) ArrivalDepartures() []ctdf.ArrivalDeparture {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]ctdf.ArrivalDeparture(nil), r.arrivalDepartures...)
}
