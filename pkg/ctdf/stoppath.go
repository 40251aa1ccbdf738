package ctdf

// StopPath is the polyline a vehicle follows from the previous stop up to StopID
type StopPath struct {
	ID         string `groups:"basic" bson:"id" yaml:"id"`
	RouteID    string `groups:"basic" bson:"routeid" yaml:"route"`
	FromStopID string `groups:"basic" bson:"fromstopid" yaml:"from"`
	StopID     string `groups:"basic" bson:"stopid" yaml:"stop"`

	Locations []Location `groups:"detailed" bson:"locations" yaml:"-"`

	IsLayover               bool `groups:"detailed" bson:"islayover" yaml:"layover"`
	IsWaitStop              bool `groups:"detailed" bson:"iswaitstop" yaml:"waitstop"`
	IsScheduleAdherenceStop bool `groups:"detailed" bson:"isscheduleadherencestop" yaml:"adherencestop"`

	// Minimum time the vehicle rests at a layover before departing
	BreakTimeSeconds int `groups:"detailed" bson:"breaktimeseconds" yaml:"breaktime"`

	// Route specific override of the max distance from segment, 0 means use the configured default
	MaxDistance float64 `groups:"detailed" bson:"maxdistance" yaml:"maxdistance"`

	length         float64
	lengthComputed bool
}

func (s *StopPath) Segments() []Vector {
	if len(s.Locations) < 2 {
		return nil
	}

	segments := make([]Vector, 0, len(s.Locations)-1)
	for i := 0; i < len(s.Locations)-1; i++ {
		segments = append(segments, Vector{L1: s.Locations[i], L2: s.Locations[i+1]})
	}
	return segments
}

// Length in metres
func (s *StopPath) Length() float64 {
	if s.lengthComputed {
		return s.length
	}

	total := 0.0
	for _, segment := range s.Segments() {
		total += segment.Length()
	}
	return total
}

// CacheLength stores the length so later calls are free. Must be called before the stop path is shared.
func (s *StopPath) CacheLength() {
	s.lengthComputed = false
	s.length = s.Length()
	s.lengthComputed = true
}

// DistanceAlong returns the distance from the start of the stop path to a point on segmentIndex
func (s *StopPath) DistanceAlong(segmentIndex int, distanceAlongSegment float64) float64 {
	distance := distanceAlongSegment
	segments := s.Segments()
	for i := 0; i < segmentIndex && i < len(segments); i++ {
		distance += segments[i].Length()
	}
	return distance
}

// EndLocation is the location of the stop the path ends at
func (s *StopPath) EndLocation() Location {
	if len(s.Locations) == 0 {
		return Location{}
	}
	return s.Locations[len(s.Locations)-1]
}

// LocationAt returns the point distance metres along the path
func (s *StopPath) LocationAt(distance float64) Location {
	remaining := distance
	segments := s.Segments()
	for _, segment := range segments {
		length := segment.Length()
		if remaining <= length {
			return segment.LocationAlong(remaining)
		}
		remaining -= length
	}
	return s.EndLocation()
}
