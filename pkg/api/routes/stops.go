package routes

import (
	"github.com/gofiber/fiber/v2"
)

func StopsRouter(router fiber.Router, tracker Tracker) {
	router.Get("/:identifier/predictions", func(c *fiber.Ctx) error {
		return getStopPredictions(c, tracker)
	})
}

// getStopPredictions lists the predictions for the stop, soonest first. limit caps the count.
func getStopPredictions(c *fiber.Ctx, tracker Tracker) error {
	predictions := tracker.Predictions(c.Params("identifier"))

	if limit := c.QueryInt("limit", 0); limit > 0 && len(predictions) > limit {
		predictions = predictions[:limit]
	}

	return sendReduced(c, predictions)
}
