package ctdf

import (
	"time"

	"github.com/google/uuid"
)

type VehicleEventType string

const (
	VehicleEventPredictable         VehicleEventType = "Predictable"
	VehicleEventTimeout             VehicleEventType = "Timeout"
	VehicleEventNoMatch             VehicleEventType = "No match"
	VehicleEventNoProgress          VehicleEventType = "No progress"
	VehicleEventDelayed             VehicleEventType = "Delayed"
	VehicleEventEndOfBlock          VehicleEventType = "End of block"
	VehicleEventAssignmentGrabbed   VehicleEventType = "Assignment Grabbed"
	VehicleEventAssignmentChanged   VehicleEventType = "Assignment Changed"
	VehicleEventAvlConflict         VehicleEventType = "AVL Conflict"
	VehicleEventPredictionVariation VehicleEventType = "Prediction variation"
)

// VehicleEvent is an append-only notable occurrence for a vehicle
type VehicleEvent struct {
	ID          string           `groups:"basic" bson:"id"`
	Type        VehicleEventType `groups:"basic" bson:"type"`
	Time        time.Time        `groups:"basic" bson:"time"`
	VehicleID   string           `groups:"basic" bson:"vehicleid"`
	Description string           `groups:"basic" bson:"description"`

	Predictable       bool `groups:"basic" bson:"predictable"`
	BecamePredictable bool `groups:"detailed" bson:"becamepredictable"`
	BecameUnpredictable bool `groups:"detailed" bson:"becameunpredictable"`

	SupervisorID string `groups:"detailed" bson:"supervisorid,omitempty"`

	BlockID    string    `groups:"detailed" bson:"blockid,omitempty"`
	TripID     string    `groups:"detailed" bson:"tripid,omitempty"`
	StopID     string    `groups:"detailed" bson:"stopid,omitempty"`
	RouteID    string    `groups:"detailed" bson:"routeid,omitempty"`
	AvlTime    time.Time `groups:"detailed" bson:"avltime"`
	Location   *Location `groups:"detailed" bson:"location,omitempty"`
}

func NewVehicleEvent(eventType VehicleEventType, vehicleID string, now time.Time, description string) VehicleEvent {
	return VehicleEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Time:        now,
		VehicleID:   vehicleID,
		Description: description,
	}
}
