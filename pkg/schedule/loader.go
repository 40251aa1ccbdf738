package schedule

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
	"gopkg.in/yaml.v3"

	_ "time/tzdata"
)

type scheduleFile struct {
	Revision  int    `yaml:"revision"`
	Timezone  string `yaml:"timezone"`
	Calendars []struct {
		Service string   `yaml:"service"`
		Days    []string `yaml:"days"`
		Start   string   `yaml:"start"`
		End     string   `yaml:"end"`
	} `yaml:"calendars"`
	StopPaths []struct {
		ctdf.StopPath `yaml:",inline"`
		Points        [][2]float64 `yaml:"points"`
	} `yaml:"stoppaths"`
	Patterns []ctdf.TripPattern `yaml:"patterns"`
	Trips    []struct {
		ctdf.Trip `yaml:",inline"`
		Times     [][2]string `yaml:"times"`
	} `yaml:"trips"`
	Blocks      []ctdf.Block              `yaml:"blocks"`
	TravelTimes []ctdf.TravelTimesForTrip `yaml:"traveltimes"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseScheduleTime parses HH:MM[:SS] into seconds into the service day, hours may exceed 23.
// An empty string or "-" is NoTime.
func ParseScheduleTime(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "-" {
		return ctdf.NoTime, nil
	}

	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid schedule time %q", value)
	}

	multipliers := []int{3600, 60, 1}
	total := 0
	for i, part := range parts {
		number, err := strconv.Atoi(part)
		if err != nil || number < 0 {
			return 0, fmt.Errorf("invalid schedule time %q", value)
		}
		total += number * multipliers[i]
	}
	return total, nil
}

// Decode parses a yaml schedule description into a normalised graph
func Decode(data []byte, cfg config.TravelTimesConfig) (*Graph, []Problem, error) {
	var file scheduleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("decoding schedule: %w", err)
	}

	location := time.UTC
	if file.Timezone != "" {
		loaded, err := time.LoadLocation(file.Timezone)
		if err != nil {
			return nil, nil, fmt.Errorf("loading timezone: %w", err)
		}
		location = loaded
	}

	graph := NewGraph(file.Revision, location)

	for _, fileCalendar := range file.Calendars {
		calendar := &Calendar{ServiceID: fileCalendar.Service}
		for _, day := range fileCalendar.Days {
			weekday, ok := weekdays[strings.ToLower(day)]
			if !ok {
				return nil, nil, fmt.Errorf("calendar %s: unknown day %q", fileCalendar.Service, day)
			}
			calendar.Weekdays = append(calendar.Weekdays, weekday)
		}
		if fileCalendar.Start != "" {
			start, err := time.ParseInLocation("2006-01-02", fileCalendar.Start, location)
			if err != nil {
				return nil, nil, fmt.Errorf("calendar %s: %w", fileCalendar.Service, err)
			}
			calendar.StartDate = start
		}
		if fileCalendar.End != "" {
			end, err := time.ParseInLocation("2006-01-02", fileCalendar.End, location)
			if err != nil {
				return nil, nil, fmt.Errorf("calendar %s: %w", fileCalendar.Service, err)
			}
			calendar.EndDate = end
		}
		graph.Calendars[calendar.ServiceID] = calendar
	}

	for _, fileStopPath := range file.StopPaths {
		stopPath := fileStopPath.StopPath
		for _, point := range fileStopPath.Points {
			stopPath.Locations = append(stopPath.Locations, ctdf.NewLocation(point[0], point[1]))
		}
		graph.StopPaths[stopPath.ID] = &stopPath
	}

	for i := range file.Patterns {
		pattern := file.Patterns[i]
		graph.TripPatterns[pattern.ID] = &pattern
	}

	for _, fileTrip := range file.Trips {
		trip := fileTrip.Trip
		for _, times := range fileTrip.Times {
			arrival, err := ParseScheduleTime(times[0])
			if err != nil {
				return nil, nil, fmt.Errorf("trip %s: %w", trip.ID, err)
			}
			departure, err := ParseScheduleTime(times[1])
			if err != nil {
				return nil, nil, fmt.Errorf("trip %s: %w", trip.ID, err)
			}
			trip.ScheduleTimes = append(trip.ScheduleTimes, ctdf.ScheduleTime{Arrival: arrival, Departure: departure})
		}
		graph.Trips[trip.ID] = &trip
	}

	for i := range file.Blocks {
		block := file.Blocks[i]
		graph.Blocks[block.ID] = &block
	}

	for i := range file.TravelTimes {
		travelTimes := file.TravelTimes[i]
		graph.TravelTimes[travelTimes.ID] = &travelTimes
	}

	problems := graph.Normalize(cfg)

	return graph, problems, nil
}

func LoadFile(path string, cfg config.TravelTimesConfig) (*Graph, []Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return Decode(data, cfg)
}
