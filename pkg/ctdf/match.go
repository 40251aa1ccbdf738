package ctdf

import "time"

// Indices locates a position within a block, stop paths and segments are indexed into the trip pattern
type Indices struct {
	TripIndex     int `groups:"basic" bson:"tripindex"`
	StopPathIndex int `groups:"basic" bson:"stoppathindex"`
	SegmentIndex  int `groups:"basic" bson:"segmentindex"`
}

func (i Indices) compare(other Indices) int {
	switch {
	case i.TripIndex != other.TripIndex:
		return i.TripIndex - other.TripIndex
	case i.StopPathIndex != other.StopPathIndex:
		return i.StopPathIndex - other.StopPathIndex
	default:
		return i.SegmentIndex - other.SegmentIndex
	}
}

func (i Indices) IsBefore(other Indices) bool {
	return i.compare(other) < 0
}

func (i Indices) IsAfterOrEqual(other Indices) bool {
	return i.compare(other) >= 0
}

// TemporalMatch ties an AVL report to a position on a trip together with its schedule adherence
type TemporalMatch struct {
	BlockID string `groups:"basic" bson:"blockid"`
	TripID  string `groups:"basic" bson:"tripid"`
	Indices `groups:"basic" bson:",inline"`

	StopPathID            string  `groups:"basic" bson:"stoppathid"`
	DistanceAlongSegment  float64 `groups:"detailed" bson:"distancealongsegment"`
	DistanceAlongStopPath float64 `groups:"detailed" bson:"distancealongstoppath"`
	DistanceToSegment     float64 `groups:"detailed" bson:"distancetosegment"`

	// AtStop is set when within the before/after stop distance of a stop, AtStopPathIndex is the
	// stop path that ends at that stop
	AtStop          bool   `groups:"basic" bson:"atstop"`
	AtStopPathIndex int    `groups:"basic" bson:"atstoppathindex"`
	AtStopID        string `groups:"basic" bson:"atstopid,omitempty"`

	// Positive means early, negative means late
	ScheduleAdherence time.Duration `groups:"basic" bson:"scheduleadherence"`

	AvlTime time.Time `groups:"basic" bson:"avltime"`
}

func (m *TemporalMatch) IsLate() bool {
	return m.ScheduleAdherence < 0
}

// Match is the persisted record of a match
type Match struct {
	VehicleID string    `groups:"basic" bson:"vehicleid"`
	Time      time.Time `groups:"basic" bson:"time"`
	TemporalMatch `groups:"basic" bson:",inline"`
}
