package siri_vm

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/avlengine/pkg/ctdf"
)

const Source = "SIRI-VM"

type SiriVM struct {
	ResponseTimestamp string
	ProducerRef       string

	VehicleActivity []*VehicleActivity
}

// AvlReports converts the vehicle activities into AVL reports. Activities without a vehicle,
// recorded time or location are skipped.
func (s *SiriVM) AvlReports() []ctdf.AvlReport {
	reports := make([]ctdf.AvlReport, 0, len(s.VehicleActivity))

	for _, activity := range s.VehicleActivity {
		report, ok := activity.AvlReport()
		if !ok {
			continue
		}
		reports = append(reports, report)
	}

	if skipped := len(s.VehicleActivity) - len(reports); skipped > 0 {
		log.Debug().Int("skipped", skipped).Str("producer", s.ProducerRef).Msg("Skipped unusable SIRI-VM vehicle activities")
	}

	return reports
}

func (a *VehicleActivity) AvlReport() (ctdf.AvlReport, bool) {
	journey := a.Journey
	if journey == nil || journey.VehicleRef == "" {
		return ctdf.AvlReport{}, false
	}

	recordedAt, err := time.Parse(time.RFC3339, a.RecordedAtTime)
	if err != nil {
		return ctdf.AvlReport{}, false
	}

	if journey.Latitude == 0 && journey.Longitude == 0 {
		return ctdf.AvlReport{}, false
	}

	report := ctdf.AvlReport{
		VehicleID: journey.VehicleRef,
		Time:      recordedAt,
		Location:  ctdf.NewLocation(journey.Latitude, journey.Longitude),
		Source:    Source,
	}

	if journey.Bearing != nil && *journey.Bearing >= 0 && *journey.Bearing < 360 {
		heading := *journey.Bearing
		report.Heading = &heading
	}

	switch {
	case journey.BlockRef != "":
		report.AssignmentID = journey.BlockRef
		report.AssignmentType = ctdf.AssignmentTypeBlockID
	case journey.DatedJourneyRef != "":
		report.AssignmentID = journey.DatedJourneyRef
		report.AssignmentType = ctdf.AssignmentTypeTripID
	case journey.LineRef != "":
		report.AssignmentID = journey.LineRef
		report.AssignmentType = ctdf.AssignmentTypeRouteID
	}

	if passengers := a.Occupancy.Passengers(); passengers > 0 {
		report.PassengerCount = &passengers

		if capacity := a.Occupancy.Capacity(); capacity > 0 {
			fullness := min(float64(passengers)/float64(capacity), 1)
			report.PassengerFullness = &fullness
		}
	}

	return report, true
}
