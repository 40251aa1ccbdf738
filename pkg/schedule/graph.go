package schedule

import (
	"sort"
	"time"

	"github.com/travigo/avlengine/pkg/ctdf"
	"golang.org/x/exp/slices"
)

const secondsPerDay = 86400

// Calendar describes on which days a service runs. A service without a calendar runs every day.
type Calendar struct {
	ServiceID string
	Weekdays  []time.Weekday
	StartDate time.Time
	EndDate   time.Time
}

func (c *Calendar) RunsOn(serviceDate time.Time) bool {
	if !c.StartDate.IsZero() && serviceDate.Before(c.StartDate) {
		return false
	}
	if !c.EndDate.IsZero() && serviceDate.After(c.EndDate) {
		return false
	}
	if len(c.Weekdays) == 0 {
		return true
	}
	return slices.Contains(c.Weekdays, serviceDate.Weekday())
}

// Graph is an immutable snapshot of the schedule for a single configuration revision.
// Entities refer to each other by id, never by pointer back-references.
type Graph struct {
	Revision int
	Location *time.Location

	StopPaths    map[string]*ctdf.StopPath
	TripPatterns map[string]*ctdf.TripPattern
	Trips        map[string]*ctdf.Trip
	Blocks       map[string]*ctdf.Block
	TravelTimes  map[string]*ctdf.TravelTimesForTrip
	Calendars    map[string]*Calendar

	flagged      map[string]string
	tripsByRoute map[string][]string
	blockIDs     []string
	tripIDs      []string
}

func NewGraph(revision int, location *time.Location) *Graph {
	if location == nil {
		location = time.UTC
	}

	return &Graph{
		Revision:     revision,
		Location:     location,
		StopPaths:    map[string]*ctdf.StopPath{},
		TripPatterns: map[string]*ctdf.TripPattern{},
		Trips:        map[string]*ctdf.Trip{},
		Blocks:       map[string]*ctdf.Block{},
		TravelTimes:  map[string]*ctdf.TravelTimesForTrip{},
		Calendars:    map[string]*Calendar{},
		flagged:      map[string]string{},
		tripsByRoute: map[string][]string{},
	}
}

func (g *Graph) Trip(id string) *ctdf.Trip {
	return g.Trips[id]
}

func (g *Graph) Block(id string) *ctdf.Block {
	return g.Blocks[id]
}

func (g *Graph) StopPath(id string) *ctdf.StopPath {
	return g.StopPaths[id]
}

// Flagged returns the reason an entity was excluded during normalisation
func (g *Graph) Flagged(id string) (string, bool) {
	reason, ok := g.flagged[id]
	return reason, ok
}

func (g *Graph) flag(id string, reason string) {
	if _, exists := g.flagged[id]; !exists {
		g.flagged[id] = reason
	}
}

// StopPathsFor returns the ordered stop paths of the trip's pattern
func (g *Graph) StopPathsFor(tripID string) []*ctdf.StopPath {
	trip := g.Trips[tripID]
	if trip == nil {
		return nil
	}
	pattern := g.TripPatterns[trip.TripPatternID]
	if pattern == nil {
		return nil
	}

	stopPaths := make([]*ctdf.StopPath, 0, len(pattern.StopPathIDs))
	for _, id := range pattern.StopPathIDs {
		stopPath := g.StopPaths[id]
		if stopPath == nil {
			return nil
		}
		stopPaths = append(stopPaths, stopPath)
	}
	return stopPaths
}

func (g *Graph) TravelTimesFor(tripID string) *ctdf.TravelTimesForTrip {
	trip := g.Trips[tripID]
	if trip == nil {
		return nil
	}
	return g.TravelTimes[trip.TravelTimesID]
}

func (g *Graph) TripsForRoute(routeID string) []*ctdf.Trip {
	var trips []*ctdf.Trip
	for _, id := range g.tripsByRoute[routeID] {
		if _, flagged := g.flagged[id]; flagged {
			continue
		}
		trips = append(trips, g.Trips[id])
	}
	return trips
}

// TripsForBlock returns the usable trips of a block in running order
func (g *Graph) TripsForBlock(blockID string) []*ctdf.Trip {
	block := g.Blocks[blockID]
	if block == nil {
		return nil
	}

	trips := make([]*ctdf.Trip, 0, len(block.TripIDs))
	for _, id := range block.TripIDs {
		if trip := g.Trips[id]; trip != nil {
			trips = append(trips, trip)
		}
	}
	return trips
}

// ServiceDayStart returns midnight of the service day containing t. Uses noon minus 12 hours so that
// daylight saving transitions keep schedule seconds aligned.
func (g *Graph) ServiceDayStart(t time.Time) time.Time {
	local := t.In(g.Location)
	noon := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, g.Location)
	return noon.Add(-12 * time.Hour)
}

func (g *Graph) SecondsIntoDay(t time.Time) int {
	return int(t.Sub(g.ServiceDayStart(t)).Seconds())
}

func (g *Graph) addDays(serviceDate time.Time, days int) time.Time {
	local := serviceDate.In(g.Location)
	return g.ServiceDayStart(time.Date(local.Year(), local.Month(), local.Day()+days, 12, 0, 0, 0, g.Location))
}

// Epoch converts seconds into a service day to an absolute time
func (g *Graph) Epoch(serviceDate time.Time, secsIntoDay int) time.Time {
	return serviceDate.Add(time.Duration(secsIntoDay) * time.Second)
}

func (g *Graph) serviceRunsOn(serviceID string, serviceDate time.Time) bool {
	calendar := g.Calendars[serviceID]
	if calendar == nil {
		return true
	}
	return calendar.RunsOn(serviceDate)
}

// ServiceDateForBlock returns the start of the service day on which the block is active at t.
// Blocks that run past midnight are found on the previous service day.
func (g *Graph) ServiceDateForBlock(block *ctdf.Block, t time.Time, beforeStartSecs int, afterEndSecs int) (time.Time, bool) {
	today := g.ServiceDayStart(t)
	secs := int(t.Sub(today).Seconds())

	for _, offset := range []int{0, -1} {
		serviceDate := g.addDays(today, offset)
		if !g.serviceRunsOn(block.ServiceID, serviceDate) {
			continue
		}
		if block.IsActive(secs-offset*secondsPerDay, beforeStartSecs, afterEndSecs) {
			return serviceDate, true
		}
	}
	return time.Time{}, false
}

// BlocksActiveAt returns the usable blocks active at t, widened by the allowances, ordered by id
func (g *Graph) BlocksActiveAt(t time.Time, beforeStartSecs int, afterEndSecs int) []*ctdf.Block {
	var blocks []*ctdf.Block
	for _, id := range g.blockIDs {
		if _, flagged := g.flagged[id]; flagged {
			continue
		}
		block := g.Blocks[id]
		if _, active := g.ServiceDateForBlock(block, t, beforeStartSecs, afterEndSecs); active {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// TripsActiveAt returns the usable trips whose scheduled span, widened by the allowances, covers t
func (g *Graph) TripsActiveAt(t time.Time, beforeStartSecs int, afterEndSecs int) []*ctdf.Trip {
	today := g.ServiceDayStart(t)
	secs := int(t.Sub(today).Seconds())

	var trips []*ctdf.Trip
	for _, id := range g.tripIDs {
		if _, flagged := g.flagged[id]; flagged {
			continue
		}
		trip := g.Trips[id]
		start, end := trip.StartTime(), trip.EndTime()
		if start == ctdf.NoTime || end == ctdf.NoTime {
			continue
		}

		for _, offset := range []int{0, -1} {
			serviceDate := g.addDays(today, offset)
			if !g.serviceRunsOn(trip.ServiceID, serviceDate) {
				continue
			}
			adjusted := secs - offset*secondsPerDay
			if adjusted >= start-beforeStartSecs && adjusted <= end+afterEndSecs {
				trips = append(trips, trip)
				break
			}
		}
	}
	return trips
}

// DistanceAlongTrip is the distance from the start of the trip to a position on it
func (g *Graph) DistanceAlongTrip(tripID string, stopPathIndex int, distanceAlongStopPath float64) float64 {
	stopPaths := g.StopPathsFor(tripID)
	distance := distanceAlongStopPath
	for i := 0; i < stopPathIndex && i < len(stopPaths); i++ {
		distance += stopPaths[i].Length()
	}
	return distance
}

// DistanceAlongBlock is the distance from the start of the block to a position in it
func (g *Graph) DistanceAlongBlock(blockID string, tripIndex int, stopPathIndex int, distanceAlongStopPath float64) float64 {
	trips := g.TripsForBlock(blockID)
	distance := 0.0
	for i := 0; i < tripIndex && i < len(trips); i++ {
		for _, stopPath := range g.StopPathsFor(trips[i].ID) {
			distance += stopPath.Length()
		}
	}
	if tripIndex < len(trips) {
		distance += g.DistanceAlongTrip(trips[tripIndex].ID, stopPathIndex, distanceAlongStopPath)
	}
	return distance
}

func (g *Graph) index() {
	g.blockIDs = g.blockIDs[:0]
	for id := range g.Blocks {
		g.blockIDs = append(g.blockIDs, id)
	}
	sort.Strings(g.blockIDs)

	g.tripIDs = g.tripIDs[:0]
	g.tripsByRoute = map[string][]string{}
	for id, trip := range g.Trips {
		g.tripIDs = append(g.tripIDs, id)
		g.tripsByRoute[trip.RouteID] = append(g.tripsByRoute[trip.RouteID], id)
	}
	sort.Strings(g.tripIDs)
	for _, ids := range g.tripsByRoute {
		sort.Strings(ids)
	}
}
