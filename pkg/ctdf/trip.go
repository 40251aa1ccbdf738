package ctdf

// NoTime marks an absent scheduled arrival or departure
const NoTime = -1

// ScheduleTime holds seconds into the service day
type ScheduleTime struct {
	Arrival   int `groups:"basic" bson:"arrival" yaml:"arrival"`
	Departure int `groups:"basic" bson:"departure" yaml:"departure"`
}

// Time returns the departure when set and the arrival otherwise
func (s ScheduleTime) Time() int {
	if s.Departure != NoTime {
		return s.Departure
	}
	return s.Arrival
}

// ArrivalOrDeparture prefers the arrival
func (s ScheduleTime) ArrivalOrDeparture() int {
	if s.Arrival != NoTime {
		return s.Arrival
	}
	return s.Departure
}

type TripPattern struct {
	ID          string   `groups:"basic" bson:"id" yaml:"id"`
	RouteID     string   `groups:"basic" bson:"routeid" yaml:"route"`
	StopPathIDs []string `groups:"basic" bson:"stoppathids" yaml:"stoppaths"`
}

type Trip struct {
	ID            string         `groups:"basic" bson:"id" yaml:"id"`
	RouteID       string         `groups:"basic" bson:"routeid" yaml:"route"`
	BlockID       string         `groups:"basic" bson:"blockid" yaml:"block"`
	ServiceID     string         `groups:"basic" bson:"serviceid" yaml:"service"`
	TripPatternID string         `groups:"basic" bson:"trippatternid" yaml:"pattern"`
	TravelTimesID string         `groups:"detailed" bson:"traveltimesid" yaml:"traveltimes"`
	HeadwaySecs   int            `groups:"detailed" bson:"headwaysecs" yaml:"headway"`
	NoSchedule    bool           `groups:"detailed" bson:"noschedule" yaml:"noschedule"`
	ScheduleTimes []ScheduleTime `groups:"detailed" bson:"scheduletimes" yaml:"-"`
}

// StartTime is the scheduled departure from the first stop
func (t *Trip) StartTime() int {
	for _, scheduleTime := range t.ScheduleTimes {
		if secs := scheduleTime.Time(); secs != NoTime {
			return secs
		}
	}
	return NoTime
}

// EndTime is the scheduled arrival at the last stop
func (t *Trip) EndTime() int {
	for i := len(t.ScheduleTimes) - 1; i >= 0; i-- {
		if secs := t.ScheduleTimes[i].ArrivalOrDeparture(); secs != NoTime {
			return secs
		}
	}
	return NoTime
}

// ScheduleTimeAt returns the schedule time for the stop at the end of stop path index
func (t *Trip) ScheduleTimeAt(index int) (ScheduleTime, bool) {
	if index < 0 || index >= len(t.ScheduleTimes) {
		return ScheduleTime{Arrival: NoTime, Departure: NoTime}, false
	}
	return t.ScheduleTimes[index], true
}

// Block is the ordered run of trips a single vehicle operates during a service day
type Block struct {
	ID        string   `groups:"basic" bson:"id" yaml:"id"`
	ServiceID string   `groups:"basic" bson:"serviceid" yaml:"service"`
	TripIDs   []string `groups:"basic" bson:"tripids" yaml:"trips"`

	// Seconds into the service day, may exceed 86400 for blocks running past midnight
	StartTime int `groups:"basic" bson:"starttime" yaml:"start"`
	EndTime   int `groups:"basic" bson:"endtime" yaml:"end"`
}

// IsActive reports whether secsIntoDay falls within the block window widened by the allowances
func (b *Block) IsActive(secsIntoDay int, beforeStartSecs int, afterEndSecs int) bool {
	return secsIntoDay >= b.StartTime-beforeStartSecs && secsIntoDay <= b.EndTime+afterEndSecs
}

func (b *Block) TripIndex(tripID string) int {
	for i, id := range b.TripIDs {
		if id == tripID {
			return i
		}
	}
	return -1
}
