// Package schedtest builds small synthetic schedule graphs for tests
package schedtest

import (
	"fmt"
	"math"
	"time"

	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/schedule"
)

var Origin = ctdf.NewLocation(51.5, -0.1)

// Offset moves a location by metres east and north
func Offset(origin ctdf.Location, east float64, north float64) ctdf.Location {
	const earthRadius = 6371000.0
	latRad := origin.Latitude() * math.Pi / 180

	lat := origin.Latitude() + north/earthRadius*180/math.Pi
	lon := origin.Longitude() + east/(earthRadius*math.Cos(latRad))*180/math.Pi
	return ctdf.NewLocation(lat, lon)
}

// Options describe a route running east from Origin (shifted North metres) with evenly spaced
// stops. Even numbered trips of the block run outbound, odd ones return.
type Options struct {
	RouteID   string
	BlockID   string
	ServiceID string

	North              float64
	NumStops           int
	StopSpacing        float64
	FirstDepartureSecs int
	SecsBetweenStops   int
	LayoverSecs        int
	Trips              int
}

func (o *Options) defaults() {
	if o.RouteID == "" {
		o.RouteID = "R1"
	}
	if o.BlockID == "" {
		o.BlockID = "B1"
	}
	if o.NumStops == 0 {
		o.NumStops = 6
	}
	if o.StopSpacing == 0 {
		o.StopSpacing = 400
	}
	if o.SecsBetweenStops == 0 {
		o.SecsBetweenStops = 120
	}
	if o.Trips == 0 {
		o.Trips = 1
	}
}

func stopLocation(o Options, index int) ctdf.Location {
	return Offset(Origin, float64(index)*o.StopSpacing, o.North)
}

func addPattern(g *schedule.Graph, o Options, direction string, order []int) string {
	patternID := fmt.Sprintf("%s:%s", o.RouteID, direction)
	pattern := &ctdf.TripPattern{ID: patternID, RouteID: o.RouteID}

	for k, stopIndex := range order {
		stopID := fmt.Sprintf("%s:S%d", o.RouteID, stopIndex)
		stopPath := &ctdf.StopPath{
			ID:      fmt.Sprintf("%s:%d", patternID, k),
			RouteID: o.RouteID,
			StopID:  stopID,
		}

		end := stopLocation(o, stopIndex)
		if k == 0 {
			// short lead in to the first stop which is where the vehicle lays over
			step := 20.0
			if len(order) > 1 && order[1] < stopIndex {
				step = -20
			}
			stopPath.Locations = []ctdf.Location{Offset(end, -step, 0), end}
			stopPath.IsLayover = true
			stopPath.IsWaitStop = true
		} else {
			previousIndex := order[k-1]
			start := stopLocation(o, previousIndex)
			middle := Offset(Origin, (float64(previousIndex)+float64(stopIndex))/2*o.StopSpacing, o.North)
			stopPath.FromStopID = fmt.Sprintf("%s:S%d", o.RouteID, previousIndex)
			stopPath.Locations = []ctdf.Location{start, middle, end}
		}

		g.StopPaths[stopPath.ID] = stopPath
		pattern.StopPathIDs = append(pattern.StopPathIDs, stopPath.ID)
	}

	g.TripPatterns[patternID] = pattern
	return patternID
}

// Add places the route, its trips and block into g
func Add(g *schedule.Graph, o Options) {
	o.defaults()

	outbound := make([]int, o.NumStops)
	inbound := make([]int, o.NumStops)
	for i := 0; i < o.NumStops; i++ {
		outbound[i] = i
		inbound[i] = o.NumStops - 1 - i
	}
	outboundPattern := addPattern(g, o, "out", outbound)
	inboundPattern := addPattern(g, o, "in", inbound)

	block := &ctdf.Block{ID: o.BlockID, ServiceID: o.ServiceID}
	tripDuration := (o.NumStops - 1) * o.SecsBetweenStops

	for i := 0; i < o.Trips; i++ {
		patternID := outboundPattern
		if i%2 == 1 {
			patternID = inboundPattern
		}

		start := o.FirstDepartureSecs + i*(tripDuration+o.LayoverSecs)
		trip := &ctdf.Trip{
			ID:            TripID(o, i),
			RouteID:       o.RouteID,
			BlockID:       o.BlockID,
			ServiceID:     o.ServiceID,
			TripPatternID: patternID,
		}
		for k := 0; k < o.NumStops; k++ {
			secs := start + k*o.SecsBetweenStops
			trip.ScheduleTimes = append(trip.ScheduleTimes, ctdf.ScheduleTime{Arrival: secs, Departure: secs})
		}

		g.Trips[trip.ID] = trip
		block.TripIDs = append(block.TripIDs, trip.ID)
	}

	g.Blocks[block.ID] = block
}

func TripID(o Options, index int) string {
	o.defaults()
	return fmt.Sprintf("%s_trip%d", o.BlockID, index)
}

// Build returns a normalised graph in UTC holding one route per option set
func Build(options ...Options) *schedule.Graph {
	g := schedule.NewGraph(1, time.UTC)
	for _, o := range options {
		Add(g, o)
	}
	g.Normalize(config.Default().TravelTimes)
	return g
}

// LocationOnTrip returns the point distance metres along the given stop path of a trip
func LocationOnTrip(g *schedule.Graph, tripID string, stopPathIndex int, distance float64) ctdf.Location {
	stopPaths := g.StopPathsFor(tripID)
	return stopPaths[stopPathIndex].LocationAt(distance)
}

// Day is the service date used by tests
var Day = time.Date(2024, time.March, 12, 0, 0, 0, 0, time.UTC)

// At returns an absolute time secs into Day
func At(secs int) time.Time {
	return Day.Add(time.Duration(secs) * time.Second)
}
