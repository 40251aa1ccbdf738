package ctdf

import "time"

type PredictionAlgorithm string

const (
	PredictionAlgorithmSchedule PredictionAlgorithm = "Schedule"
	PredictionAlgorithmAverage  PredictionAlgorithm = "HistoricalAverage"
	PredictionAlgorithmKalman   PredictionAlgorithm = "Kalman"
	PredictionAlgorithmRLS      PredictionAlgorithm = "RLS"
)

// Prediction is an estimated arrival and/or departure for a vehicle at a stop
type Prediction struct {
	VehicleID     string `groups:"basic" bson:"vehicleid"`
	StopID        string `groups:"basic" bson:"stopid"`
	StopPathIndex int    `groups:"detailed" bson:"stoppathindex"`
	TripID        string `groups:"basic" bson:"tripid"`
	BlockID       string `groups:"detailed" bson:"blockid"`
	RouteID       string `groups:"basic" bson:"routeid"`

	Arrival   time.Time `groups:"basic" bson:"arrival,omitempty"`
	Departure time.Time `groups:"basic" bson:"departure,omitempty"`

	// When the prediction was generated, the AVL time it was based on
	AvlTime     time.Time `groups:"detailed" bson:"avltime"`
	CreatedTime time.Time `groups:"detailed" bson:"createdtime"`

	IsWaitStop           bool                `groups:"detailed" bson:"iswaitstop"`
	AffectedByWaitStop   bool                `groups:"detailed" bson:"affectedbywaitstop"`
	SchedBasedPrediction bool                `groups:"detailed" bson:"schedbasedprediction"`
	Canceled             bool                `groups:"basic" bson:"canceled"`
	TravelTimeAlgorithm  PredictionAlgorithm `groups:"detailed" bson:"traveltimealgorithm"`
	DwellTimeAlgorithm   PredictionAlgorithm `groups:"detailed" bson:"dwelltimealgorithm"`
}

// Time is the headline time of the prediction, the arrival when present
func (p *Prediction) Time() time.Time {
	if !p.Arrival.IsZero() {
		return p.Arrival
	}
	return p.Departure
}

type ArrivalDepartureKind string

const (
	ArrivalDepartureKindArrival   ArrivalDepartureKind = "Arrival"
	ArrivalDepartureKindDeparture ArrivalDepartureKind = "Departure"
)

// ArrivalDeparture is a determined (not predicted) arrival at or departure from a stop
type ArrivalDeparture struct {
	Kind ArrivalDepartureKind `groups:"basic" bson:"kind"`

	VehicleID     string    `groups:"basic" bson:"vehicleid"`
	Time          time.Time `groups:"basic" bson:"time"`
	ScheduledTime time.Time `groups:"basic" bson:"scheduledtime,omitempty"`
	AvlTime       time.Time `groups:"detailed" bson:"avltime"`

	BlockID       string `groups:"basic" bson:"blockid"`
	TripID        string `groups:"basic" bson:"tripid"`
	TripIndex     int    `groups:"detailed" bson:"tripindex"`
	StopPathIndex int    `groups:"detailed" bson:"stoppathindex"`
	StopPathID    string `groups:"detailed" bson:"stoppathid"`
	StopID        string `groups:"basic" bson:"stopid"`
	RouteID       string `groups:"basic" bson:"routeid"`

	ServiceDate time.Time `groups:"detailed" bson:"servicedate"`
}

func (a *ArrivalDeparture) IsArrival() bool {
	return a.Kind == ArrivalDepartureKindArrival
}
