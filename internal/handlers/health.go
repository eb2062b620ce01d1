package handlers

import (
	"context"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthResponse は稼働状態レポート
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version,omitempty"`
}

// Health reports database connectivity and whether GTFS data is loaded.
func (h *GTFSHandler) Health(c *fiber.Ctx) error {
	services := make(map[string]string)
	overall := "healthy"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		services["database"] = "unhealthy: " + err.Error()
		overall = "degraded"
	} else {
		services["database"] = "healthy"
	}

	var count int
	if err := h.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM gtfs_stops").Scan(&count); err != nil {
		services["gtfs_data"] = "unhealthy: " + err.Error()
		overall = "degraded"
	} else if count == 0 {
		services["gtfs_data"] = "empty"
		overall = "degraded"
	} else {
		services["gtfs_data"] = "healthy"
	}

	statusCode := fiber.StatusOK
	if overall == "degraded" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(HealthResponse{
		Status:    overall,
		Timestamp: time.Now(),
		Services:  services,
		Version:   os.Getenv("APP_VERSION"),
	})
}
