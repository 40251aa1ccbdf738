package ctdf

import (
	"fmt"
	"time"
)

type AssignmentType string

const (
	AssignmentTypeUnset   AssignmentType = ""
	AssignmentTypeBlockID AssignmentType = "BLOCK_ID"
	AssignmentTypeTripID  AssignmentType = "TRIP_ID"
	AssignmentTypeRouteID AssignmentType = "ROUTE_ID"
)

// AvlReport is a single GPS fix from a vehicle
type AvlReport struct {
	VehicleID string    `json:"vehicle" validate:"required" groups:"basic" bson:"vehicleid"`
	Time      time.Time `json:"time" validate:"required" groups:"basic" bson:"time"`
	Location  Location  `json:"location" groups:"basic" bson:"location"`

	// Metres per second
	Speed *float64 `json:"speed,omitempty" validate:"omitempty,gte=0" groups:"basic" bson:"speed,omitempty"`
	// Degrees clockwise from north
	Heading *float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lt=360" groups:"basic" bson:"heading,omitempty"`

	AssignmentID   string         `json:"assignment,omitempty" groups:"detailed" bson:"assignmentid,omitempty"`
	AssignmentType AssignmentType `json:"assignmenttype,omitempty" validate:"omitempty,oneof=BLOCK_ID TRIP_ID ROUTE_ID" groups:"detailed" bson:"assignmenttype,omitempty"`

	PassengerCount    *int     `json:"passengercount,omitempty" validate:"omitempty,gte=0" groups:"detailed" bson:"passengercount,omitempty"`
	PassengerFullness *float64 `json:"passengerfullness,omitempty" validate:"omitempty,gte=0,lte=1" groups:"detailed" bson:"passengerfullness,omitempty"`

	Source        string    `json:"source,omitempty" groups:"detailed" bson:"source,omitempty"`
	TimeProcessed time.Time `json:"-" groups:"internal" bson:"timeprocessed"`
}

// HasValidHeading is false when no heading was supplied or the vehicle is too slow for it to mean anything
func (a *AvlReport) HasValidHeading(minSpeedForValidHeading float64) bool {
	if a.Heading == nil {
		return false
	}
	if a.Speed != nil && *a.Speed < minSpeedForValidHeading {
		return false
	}
	return true
}

func (a *AvlReport) HasAssignment() bool {
	return a.AssignmentType != AssignmentTypeUnset && a.AssignmentID != ""
}

func (a *AvlReport) String() string {
	return fmt.Sprintf("AvlReport[vehicle=%s time=%s lat=%.5f lon=%.5f]", a.VehicleID, a.Time.Format(time.RFC3339), a.Location.Latitude(), a.Location.Longitude())
}
