package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all HTTP routes
func SetupRoutes(app *fiber.App, deps Deps) {
	handler := NewHandler(deps)

	// Health check and metrics
	app.Get("/health", handler.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 routes
	api := app.Group("/api/v1")
	{
		// Session
		api.Post("/auth/login", handler.Login)
		api.Post("/auth/logout", handler.Logout)
		api.Get("/auth/session", handler.GetSession)

		// Incidents (filter with area, from, to, road_class, kind, road, top)
		api.Get("/incidents", handler.GetIncidents)
		api.Get("/incidents/summary", handler.GetSummary)
		api.Get("/incidents/ranking", handler.GetRanking)
		api.Get("/incidents/map", handler.GetMap)
		api.Get("/incidents/history", handler.GetHistory)

		// Datasets: reads are public, changes need a session
		api.Get("/datasets", handler.ListDatasets)
		api.Get("/datasets/:id", handler.GetDataset)
		api.Post("/datasets", handler.requireSession, handler.CreateDataset)
		api.Put("/datasets/:id", handler.requireSession, handler.UpdateDataset)
		api.Delete("/datasets/:id", handler.requireSession, handler.DeleteDataset)

		// Settings
		api.Get("/settings", handler.GetSettings)
		api.Put("/settings", handler.SaveSettings)
		api.Delete("/settings", handler.ResetSettings)
		api.Get("/settings/export", handler.ExportSettings)

		// Document assistant (proxies to the RAG service)
		api.Post("/ask", handler.Ask)
	}
}

// requireSession rejects requests while logged out
func (h *Handler) requireSession(c *fiber.Ctx) error {
	if !h.Session.Info().Authenticated {
		return fiber.NewError(fiber.StatusUnauthorized, "Login required")
	}
	return c.Next()
}

// ErrorHandler renders errors as {"error": true, "message": ...}
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
