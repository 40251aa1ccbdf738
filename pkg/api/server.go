package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/travigo/avlengine/pkg/api/routes"
)

func NewApp(tracker routes.Tracker) *fiber.App {
	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	webApp.Use(NewLogger())

	group := webApp.Group("/core")

	group.Get("version", routes.APIVersion)

	routes.VehiclesRouter(group.Group("/vehicles"), tracker)
	routes.StopsRouter(group.Group("/stops"), tracker)

	return webApp
}

func SetupServer(listen string, tracker routes.Tracker) error {
	return NewApp(tracker).Listen(listen)
}
