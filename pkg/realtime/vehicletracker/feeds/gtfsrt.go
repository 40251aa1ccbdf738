package feeds

import (
	"fmt"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/travigo/avlengine/pkg/ctdf"
	"google.golang.org/protobuf/proto"
)

const gtfsRealtimeSource = "GTFS-rt"

// DecodeVehiclePositions turns the vehicle positions of a GTFS-realtime feed into AVL reports.
// Entities without a vehicle id, position or timestamp are skipped.
func DecodeVehiclePositions(body []byte) ([]ctdf.AvlReport, error) {
	feed := gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parsing GTFS-rt protobuf: %w", err)
	}

	var reports []ctdf.AvlReport

	for _, entity := range feed.Entity {
		vehiclePosition := entity.GetVehicle()
		if vehiclePosition == nil || vehiclePosition.Position == nil || vehiclePosition.Timestamp == nil {
			continue
		}

		vehicleID := vehiclePosition.GetVehicle().GetId()
		if vehicleID == "" {
			vehicleID = entity.GetId()
		}
		if vehicleID == "" {
			continue
		}

		position := vehiclePosition.GetPosition()
		report := ctdf.AvlReport{
			VehicleID: vehicleID,
			Time:      time.Unix(int64(vehiclePosition.GetTimestamp()), 0),
			Location:  ctdf.NewLocation(float64(position.GetLatitude()), float64(position.GetLongitude())),
			Source:    gtfsRealtimeSource,
		}

		if position.Speed != nil {
			speed := float64(position.GetSpeed())
			report.Speed = &speed
		}
		if position.Bearing != nil {
			heading := float64(position.GetBearing())
			report.Heading = &heading
		}

		trip := vehiclePosition.GetTrip()
		switch {
		case trip.GetTripId() != "":
			report.AssignmentID = trip.GetTripId()
			report.AssignmentType = ctdf.AssignmentTypeTripID
		case trip.GetRouteId() != "":
			report.AssignmentID = trip.GetRouteId()
			report.AssignmentType = ctdf.AssignmentTypeRouteID
		}

		reports = append(reports, report)
	}

	return reports, nil
}
