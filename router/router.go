package router

import (
	"github.com/quantfolio/qf-api/handler"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes setup router api
func SetupRoutes(app *fiber.App) {
	api := app.Group("/v1")
	api.Get("/", handler.Ping)

	// Assets
	assets := api.Group("/assets")
	assets.Get("/", handler.ListAssets)
	assets.Get("/:id", handler.GetAssetDetail)

	// Backtest
	bt := api.Group("/backtest")
	bt.Post("/", handler.RunBacktest)
	bt.Get("/:id", handler.GetBacktest)

	// Monte Carlo
	api.Get("/montecarlo", handler.RunSimulation)
}
