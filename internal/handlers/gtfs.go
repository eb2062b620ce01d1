package handlers

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/yourorg/tokudoku/internal/config"
	"github.com/yourorg/tokudoku/internal/gtfs"
	"github.com/yourorg/tokudoku/internal/models"
	"github.com/yourorg/tokudoku/internal/progress"
	"github.com/yourorg/tokudoku/internal/validation"
)

const (
	// stopsResultCap bounds the bounding-box query; callers narrow the
	// viewport instead of paginating.
	stopsResultCap = 200
	// importRunTimeout caps a triggered import run as a whole.
	importRunTimeout = 10 * time.Minute
)

// GTFSHandler serves the GTFS query and import endpoints.
type GTFSHandler struct {
	db        *sql.DB
	loader    *gtfs.Loader
	timetable *gtfs.TimetableService
	agencies  []config.Agency
	adminKey  string
	hub       *progress.Hub
	importMu  sync.Mutex
}

// NewGTFSHandler wires the handler. An empty adminKey disables the trigger
// endpoint entirely.
func NewGTFSHandler(db *sql.DB, loader *gtfs.Loader, agencies []config.Agency, adminKey string, hub *progress.Hub) *GTFSHandler {
	return &GTFSHandler{
		db:        db,
		loader:    loader,
		timetable: gtfs.NewTimetableService(db),
		agencies:  agencies,
		adminKey:  adminKey,
		hub:       hub,
	}
}

// stopsInBoundsQuery selects passenger-facing stops (platforms and stations)
// inside the viewport rectangle. BETWEEN keeps both bounds inclusive.
const stopsInBoundsQuery = `
	SELECT stop_id, stop_code, stop_name, stop_lat, stop_lon, zone_id, location_type, parent_station
	FROM gtfs_stops
	WHERE stop_lat BETWEEN $1 AND $2
	  AND stop_lon BETWEEN $3 AND $4
	  AND (location_type IN (0, 1) OR location_type IS NULL)
	ORDER BY stop_id
	LIMIT $5
`

// GetStopsInBounds handles GET /api/gtfs/stops?swLat&swLng&neLat&neLng.
func (h *GTFSHandler) GetStopsInBounds(c *fiber.Ctx) error {
	box, err := validation.ParseBoundingBox(
		c.Query("swLat"), c.Query("swLng"), c.Query("neLat"), c.Query("neLng"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "座標パラメータが不正です: " + err.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := h.db.QueryContext(ctx, stopsInBoundsQuery,
		box.SwLat, box.NeLat, box.SwLng, box.NeLng, stopsResultCap)
	if err != nil {
		log.Printf("❌ stops query failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error: "停留所の取得に失敗しました",
		})
	}
	defer rows.Close()

	stops := make([]models.Stop, 0)
	for rows.Next() {
		var stop models.Stop
		var code, zone, parent sql.NullString
		var locationType sql.NullInt64
		if err := rows.Scan(&stop.StopID, &code, &stop.Name, &stop.Latitude, &stop.Longitude,
			&zone, &locationType, &parent); err != nil {
			log.Printf("❌ stops scan failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
				Error: "停留所の取得に失敗しました",
			})
		}
		stop.Code = code.String
		stop.ZoneID = zone.String
		stop.ParentStation = parent.String
		stop.LocationType = int(locationType.Int64)
		stops = append(stops, stop)
	}
	if err := rows.Err(); err != nil {
		// a mid-iteration failure must not pass off a truncated list as complete
		log.Printf("❌ stops iteration failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error: "停留所の取得に失敗しました",
		})
	}

	return c.JSON(models.StopsResponse{Stops: stops})
}

// GetStopTimetable handles GET /api/gtfs/stop-timetable?stop_id=...
func (h *GTFSHandler) GetStopTimetable(c *fiber.Ctx) error {
	stopID := strings.TrimSpace(c.Query("stop_id"))
	if stopID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "stop_idを指定してください",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	timetable, err := h.timetable.Resolve(ctx, stopID)
	if errors.Is(err, gtfs.ErrStopNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "停留所が見つかりません",
		})
	}
	if err != nil {
		log.Printf("❌ timetable resolve failed for %s: %v", stopID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error: "時刻表の取得に失敗しました",
		})
	}

	return c.JSON(timetable)
}

// ImportStatusResponse describes the most recent run and current table sizes.
type ImportStatusResponse struct {
	LastImport *models.ImportMetadata `json:"last_import"`
	Counts     map[string]int         `json:"counts"`
	Agencies   []config.Agency        `json:"agencies"`
}

// GetImportStatus handles GET /api/gtfs/import.
func (h *GTFSHandler) GetImportStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp := ImportStatusResponse{
		Counts:   make(map[string]int),
		Agencies: h.agencies,
	}

	var meta models.ImportMetadata
	var runID, feedURL, notes sql.NullString
	err := h.db.QueryRowContext(ctx, `
		SELECT id, run_id, source, imported_at, feed_url, notes
		FROM gtfs_import_metadata
		ORDER BY imported_at DESC
		LIMIT 1
	`).Scan(&meta.ID, &runID, &meta.Source, &meta.ImportedAt, &feedURL, &notes)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		log.Printf("❌ import metadata query failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error: "インポート状況の取得に失敗しました",
		})
	}
	if err == nil {
		meta.RunID = runID.String
		meta.FeedURL = feedURL.String
		meta.Notes = notes.String
		resp.LastImport = &meta
	}

	counts := map[string]string{
		"stops":      "gtfs_stops",
		"routes":     "gtfs_routes",
		"calendar":   "gtfs_calendar",
		"trips":      "gtfs_trips",
		"stop_times": "gtfs_stop_times",
	}
	for key, table := range counts {
		var n int
		// missing tables just report zero
		if err := h.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err == nil {
			resp.Counts[key] = n
		} else {
			resp.Counts[key] = 0
		}
	}

	return c.JSON(resp)
}

// ImportTriggerRequest optionally narrows the run to specific agencies.
type ImportTriggerRequest struct {
	Agencies []string `json:"agencies"`
}

// ImportTriggerResponse reports the per-agency outcome of a triggered run.
type ImportTriggerResponse struct {
	RunID      string              `json:"run_id"`
	Results    []gtfs.AgencyResult `json:"results"`
	TotalStops int                 `json:"total_stops"`
}

// TriggerImport handles POST /api/gtfs/import. Requires the x-admin-key
// header; runs the stops-only import variant. stop_times stay untouched,
// the CLI owns the full refresh.
func (h *GTFSHandler) TriggerImport(c *fiber.Ctx) error {
	key := c.Get("x-admin-key")
	if h.adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.adminKey)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
			Error: "管理者キーが正しくありません",
		})
	}

	var req ImportTriggerRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
				Error: "リクエストボディが不正です",
			})
		}
	}
	selected, err := config.FilterAgencies(h.agencies, req.Agencies)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "不明な事業者IDが含まれています",
		})
	}

	// one import at a time; concurrent triggers would interleave batches
	h.importMu.Lock()
	defer h.importMu.Unlock()

	// detached from the request context: once started the run goes to
	// completion even if the admin client disconnects
	ctx, cancel := context.WithTimeout(context.Background(), importRunTimeout)
	defer cancel()

	runID := uuid.NewString()
	h.hub.Publish(progress.Event{
		RunID: runID, Level: "info",
		Message: "停留所インポートを開始します",
	})

	results := make([]gtfs.AgencyResult, 0, len(selected))
	totalStops := 0
	for _, agency := range selected {
		log.Printf("📍 importing stops for %s (%s)", agency.ID, agency.Name)
		result := h.loader.ImportStops(ctx, h.db, agency)
		results = append(results, result)
		if result.Success {
			totalStops += result.Stops
			h.hub.Publish(progress.Event{
				RunID: runID, AgencyID: agency.ID, Level: "info",
				Message: agency.Name + " のインポートが完了しました", Stops: result.Stops,
			})
		} else {
			log.Printf("❌ import failed for %s: %s", agency.ID, result.Error)
			h.hub.Publish(progress.Event{
				RunID: runID, AgencyID: agency.ID, Level: "error",
				Message: agency.Name + " のインポートに失敗しました",
			})
		}
	}

	gtfs.RecordImport(ctx, h.db, models.ImportMetadata{
		RunID:      runID,
		Source:     "APIインポート（停留所のみ）",
		ImportedAt: time.Now().UTC(),
		FeedURL:    "https://api.gtfs-data.jp",
		Notes:      gtfs.SuccessNotes(results),
	})

	h.hub.Publish(progress.Event{
		RunID: runID, Level: "info",
		Message: "インポートが終了しました", Stops: totalStops,
	})

	return c.JSON(ImportTriggerResponse{
		RunID:      runID,
		Results:    results,
		TotalStops: totalStops,
	})
}
