package routes

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/yourorg/tokudoku/internal/config"
	"github.com/yourorg/tokudoku/internal/gtfs"
	"github.com/yourorg/tokudoku/internal/handlers"
	"github.com/yourorg/tokudoku/internal/middleware"
	"github.com/yourorg/tokudoku/internal/progress"
)

// Register wires the API surface.
func Register(app *fiber.App, db *sql.DB, agencies []config.Agency, adminKey string) {
	hub := progress.NewHub()
	loader := gtfs.NewLoader(nil)
	gtfsHandler := handlers.NewGTFSHandler(db, loader, agencies, adminKey, hub)

	api := app.Group("/api")

	// Health check (no rate limiting)
	api.Get("/health", gtfsHandler.Health)

	// ============================================================================
	// GTFS (バス停マップ・時刻表・インポート)
	// ============================================================================
	g := api.Group("/gtfs")

	g.Get("/stops", middleware.APIRateLimiter(), gtfsHandler.GetStopsInBounds)
	// GET /api/gtfs/stops?swLat=33.0&swLng=131.5&neLat=33.3&neLng=131.7

	g.Get("/stop-timetable", middleware.APIRateLimiter(), gtfsHandler.GetStopTimetable)
	// GET /api/gtfs/stop-timetable?stop_id=oitabus_1234

	g.Get("/import", gtfsHandler.GetImportStatus)
	// GET /api/gtfs/import - 最終インポートとテーブル件数

	g.Post("/import", middleware.ImportRateLimiter(), gtfsHandler.TriggerImport)
	// POST /api/gtfs/import (x-admin-key required) - 停留所のみ再インポート

	// ============================================================================
	// IMPORT PROGRESS WEBSOCKET (管理ダッシュボード用)
	// ============================================================================
	app.Use("/ws/import", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/import", websocket.New(func(c *websocket.Conn) {
		hub.Handle(c)
	}))
}
