package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/realtime/vehiclestate"
)

// Tracker is the read side of the vehicle tracker
type Tracker interface {
	CurrentState(vehicleID string) (vehiclestate.Snapshot, error)
	Predictions(stopID string) []ctdf.Prediction
	VehiclePredictions(vehicleID string) []ctdf.Prediction
	ActiveVehicles() []string
}

func groups(c *fiber.Ctx) []string {
	if c.QueryBool("detailed") {
		return []string{"basic", "detailed"}
	}
	return []string{"basic"}
}

func sendReduced(c *fiber.Ctx, data interface{}) error {
	reduced, err := sheriff.Marshal(&sheriff.Options{
		Groups: groups(c),
	}, data)

	if err != nil {
		c.SendStatus(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{
			"error": "Sheriff could not reduce the response",
		})
	}

	return c.JSON(reduced)
}
