package schedule

import (
	"fmt"
	"math"

	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
)

// NumTravelTimeSegments is how many equal travel time segments a stop path is divided into
func NumTravelTimeSegments(pathLength float64, maxTravelTimeSegmentLength float64) int {
	if maxTravelTimeSegmentLength <= 0 {
		return 1
	}
	return int(pathLength/maxTravelTimeSegmentLength + 1.0)
}

// BuildTravelTimes derives a travel time profile for a trip without one. Scheduled trips get SCHED
// times spread evenly across the travel time segments, frequency based trips get SPEED times.
func BuildTravelTimes(trip *ctdf.Trip, stopPaths []*ctdf.StopPath, cfg config.TravelTimesConfig) *ctdf.TravelTimesForTrip {
	travelTimes := &ctdf.TravelTimesForTrip{
		ID:            fmt.Sprintf("derived:%s", trip.ID),
		TripPatternID: trip.TripPatternID,
		StopPaths:     make([]ctdf.TravelTimesForStopPath, 0, len(stopPaths)),
	}

	for i, stopPath := range stopPaths {
		length := stopPath.Length()
		numSegments := NumTravelTimeSegments(length, cfg.MaxTravelTimeSegmentLength)
		segmentLength := length / float64(numSegments)

		// Nothing can be driven faster than the max segment speed
		minTravelMsec := int(length / cfg.MaxSegmentSpeedMps * 1000)

		var travelMsec, stopMsec int
		howSet := ctdf.HowSetSchedule

		if trip.NoSchedule || i >= len(trip.ScheduleTimes) {
			howSet = ctdf.HowSetSpeed
			travelMsec = int(length / cfg.DefaultSpeedMps * 1000)
			stopMsec = cfg.DefaultStopTimeMsec
		} else {
			current := trip.ScheduleTimes[i]
			if i > 0 {
				previous := trip.ScheduleTimes[i-1].Time()
				arrival := current.ArrivalOrDeparture()
				if previous != ctdf.NoTime && arrival != ctdf.NoTime {
					travelMsec = (arrival - previous) * 1000
				}
			}
			if current.Arrival != ctdf.NoTime && current.Departure != ctdf.NoTime && current.Departure > current.Arrival {
				stopMsec = (current.Departure - current.Arrival) * 1000
			}
		}

		if i > 0 && travelMsec < minTravelMsec {
			travelMsec = minTravelMsec
		}
		if i == 0 {
			travelMsec = 0
		}

		segments := make([]int, numSegments)
		perSegment := int(math.Round(float64(travelMsec) / float64(numSegments)))
		for s := range segments {
			segments[s] = perSegment
		}

		travelTimes.StopPaths = append(travelTimes.StopPaths, ctdf.TravelTimesForStopPath{
			StopPathID:              stopPath.ID,
			TravelTimeSegmentLength: segmentLength,
			TravelTimesMsec:         segments,
			StopTimeMsec:            stopMsec,
			HowSet:                  howSet,
		})
	}

	return travelTimes
}
