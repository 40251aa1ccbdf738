package ctdf

// HowSet records the provenance of a travel time profile, higher values are more trustworthy
type HowSet int

const (
	HowSetSpeed HowSet = iota
	HowSetSchedule
	HowSetService
	HowSetTrip
	HowSetAvl
)

func (h HowSet) String() string {
	switch h {
	case HowSetSpeed:
		return "SPEED"
	case HowSetSchedule:
		return "SCHED"
	case HowSetService:
		return "SERVC"
	case HowSetTrip:
		return "TRIP"
	case HowSetAvl:
		return "AVL"
	default:
		return "UNKNOWN"
	}
}

func (h HowSet) IsBetterThan(other HowSet) bool {
	return h > other
}

type TravelTimesForStopPath struct {
	StopPathID              string  `groups:"basic" bson:"stoppathid" yaml:"stoppath"`
	TravelTimeSegmentLength float64 `groups:"basic" bson:"traveltimesegmentlength" yaml:"segmentlength"`
	TravelTimesMsec         []int   `groups:"basic" bson:"traveltimesmsec" yaml:"traveltimes"`
	StopTimeMsec            int     `groups:"basic" bson:"stoptimemsec" yaml:"stoptime"`
	HowSet                  HowSet  `groups:"basic" bson:"howset" yaml:"howset"`
}

func (t *TravelTimesForStopPath) TravelTimeMsec() int {
	total := 0
	for _, travelTime := range t.TravelTimesMsec {
		total += travelTime
	}
	return total
}

// IsValid is false when any duration is negative
func (t *TravelTimesForStopPath) IsValid() bool {
	if t.StopTimeMsec < 0 {
		return false
	}
	for _, travelTime := range t.TravelTimesMsec {
		if travelTime < 0 {
			return false
		}
	}
	return true
}

// TravelTimeAfter returns the travel time remaining from distanceAlong to the end of the stop path,
// assuming each segment is travelled at a uniform rate.
func (t *TravelTimesForStopPath) TravelTimeAfter(distanceAlong float64, pathLength float64) int {
	if len(t.TravelTimesMsec) == 0 {
		return 0
	}
	if pathLength <= 0 {
		return t.TravelTimeMsec()
	}

	segmentLength := pathLength / float64(len(t.TravelTimesMsec))
	remaining := 0.0
	for i, travelTime := range t.TravelTimesMsec {
		segmentStart := float64(i) * segmentLength
		segmentEnd := segmentStart + segmentLength
		switch {
		case distanceAlong <= segmentStart:
			remaining += float64(travelTime)
		case distanceAlong < segmentEnd:
			remaining += float64(travelTime) * (segmentEnd - distanceAlong) / segmentLength
		}
	}
	return int(remaining)
}

type TravelTimesForTrip struct {
	ID            string                   `groups:"basic" bson:"id" yaml:"id"`
	TripPatternID string                   `groups:"basic" bson:"trippatternid" yaml:"pattern"`
	StopPaths     []TravelTimesForStopPath `groups:"basic" bson:"stoppaths" yaml:"stoppaths"`
}
