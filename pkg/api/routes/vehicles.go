package routes

import (
	"github.com/gofiber/fiber/v2"
)

func VehiclesRouter(router fiber.Router, tracker Tracker) {
	router.Get("/", func(c *fiber.Ctx) error {
		return listVehicles(c, tracker)
	})
	router.Get("/:identifier", func(c *fiber.Ctx) error {
		return getVehicle(c, tracker)
	})
	router.Get("/:identifier/predictions", func(c *fiber.Ctx) error {
		return getVehiclePredictions(c, tracker)
	})
}

func listVehicles(c *fiber.Ctx, tracker Tracker) error {
	return c.JSON(fiber.Map{
		"vehicles": tracker.ActiveVehicles(),
	})
}

func getVehicle(c *fiber.Ctx, tracker Tracker) error {
	snapshot, err := tracker.CurrentState(c.Params("identifier"))
	if err != nil {
		c.SendStatus(fiber.StatusNotFound)
		return c.JSON(fiber.Map{
			"error": "Could not find Vehicle matching Vehicle Identifier",
		})
	}

	return sendReduced(c, snapshot)
}

func getVehiclePredictions(c *fiber.Ctx, tracker Tracker) error {
	return sendReduced(c, tracker.VehiclePredictions(c.Params("identifier")))
}
