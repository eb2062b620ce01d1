package handlers

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/tokudoku/internal/config"
	"github.com/yourorg/tokudoku/internal/gtfs"
	"github.com/yourorg/tokudoku/internal/models"
	"github.com/yourorg/tokudoku/internal/progress"
)

// validation runs before any query, so the rejection paths need no database
func newTestApp(adminKey string) *fiber.App {
	app := fiber.New()
	h := NewGTFSHandler(nil, gtfs.NewLoader(nil), []config.Agency{
		{ID: "oitabus", Name: "大分バス", FeedURL: "https://example.invalid/feed.zip"},
	}, adminKey, progress.NewHub())
	app.Get("/api/gtfs/stops", h.GetStopsInBounds)
	app.Get("/api/gtfs/stop-timetable", h.GetStopTimetable)
	app.Post("/api/gtfs/import", h.TriggerImport)
	return app
}

func decodeError(t *testing.T, body io.Reader) models.ErrorResponse {
	t.Helper()
	var e models.ErrorResponse
	if err := json.NewDecoder(body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestGetStopsInBoundsMissingParams(t *testing.T) {
	app := newTestApp("")
	resp, err := app.Test(httptest.NewRequest("GET", "/api/gtfs/stops?swLat=33.1", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp.Body); e.Error == "" {
		t.Error("expected an error message")
	}
}

func TestGetStopsInBoundsInvertedBox(t *testing.T) {
	app := newTestApp("")
	resp, err := app.Test(httptest.NewRequest("GET",
		"/api/gtfs/stops?swLat=34.0&swLng=131.5&neLat=33.0&neLng=131.7", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetStopTimetableMissingStopID(t *testing.T) {
	app := newTestApp("")
	resp, err := app.Test(httptest.NewRequest("GET", "/api/gtfs/stop-timetable", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp.Body); e.Error != "stop_idを指定してください" {
		t.Errorf("got %q", e.Error)
	}
}

func TestTriggerImportWrongKey(t *testing.T) {
	app := newTestApp("secret")
	req := httptest.NewRequest("POST", "/api/gtfs/import", nil)
	req.Header.Set("x-admin-key", "wrong")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestStopsInBoundsQueryPredicates(t *testing.T) {
	// BETWEEN keeps both viewport edges inclusive
	if !strings.Contains(stopsInBoundsQuery, "stop_lat BETWEEN $1 AND $2") ||
		!strings.Contains(stopsInBoundsQuery, "stop_lon BETWEEN $3 AND $4") {
		t.Errorf("viewport bounds not inclusive: %s", stopsInBoundsQuery)
	}
	// only passenger-facing stops; rows imported without a location_type pass
	if !strings.Contains(stopsInBoundsQuery, "location_type IN (0, 1) OR location_type IS NULL") {
		t.Errorf("location_type filter missing: %s", stopsInBoundsQuery)
	}
	if !strings.Contains(stopsInBoundsQuery, "LIMIT $5") {
		t.Errorf("result cap missing: %s", stopsInBoundsQuery)
	}
}

// A driver whose result set yields one stop, then fails. A query that breaks
// mid-iteration must come back as a 500, not a silently truncated list.

type midScanFailDriver struct{}

func (midScanFailDriver) Open(string) (driver.Conn, error) { return &midScanFailConn{}, nil }

type midScanFailConn struct{}

func (c *midScanFailConn) Prepare(string) (driver.Stmt, error) { return &midScanFailStmt{}, nil }
func (c *midScanFailConn) Close() error                        { return nil }
func (c *midScanFailConn) Begin() (driver.Tx, error)           { return nil, errors.New("not supported") }

type midScanFailStmt struct{}

func (s *midScanFailStmt) Close() error  { return nil }
func (s *midScanFailStmt) NumInput() int { return -1 }
func (s *midScanFailStmt) Exec([]driver.Value) (driver.Result, error) {
	return nil, errors.New("not supported")
}
func (s *midScanFailStmt) Query([]driver.Value) (driver.Rows, error) {
	return &midScanFailRows{}, nil
}

type midScanFailRows struct{ served bool }

func (r *midScanFailRows) Columns() []string {
	return []string{"stop_id", "stop_code", "stop_name", "stop_lat", "stop_lon", "zone_id", "location_type", "parent_station"}
}

func (r *midScanFailRows) Close() error { return nil }

func (r *midScanFailRows) Next(dest []driver.Value) error {
	if r.served {
		return errors.New("connection reset by peer")
	}
	r.served = true
	dest[0] = "oitabus_S1"
	dest[1] = nil
	dest[2] = "大分駅前"
	dest[3] = 33.2331
	dest[4] = 131.6064
	dest[5] = nil
	dest[6] = int64(0)
	dest[7] = nil
	return nil
}

func init() {
	sql.Register("stops_midscan_fail", midScanFailDriver{})
}

func TestGetStopsInBoundsMidIterationFailure(t *testing.T) {
	db, err := sql.Open("stops_midscan_fail", "")
	if err != nil {
		t.Fatalf("open fake db: %v", err)
	}
	defer db.Close()

	app := fiber.New()
	h := NewGTFSHandler(db, gtfs.NewLoader(nil), nil, "", progress.NewHub())
	app.Get("/api/gtfs/stops", h.GetStopsInBounds)

	resp, err := app.Test(httptest.NewRequest("GET",
		"/api/gtfs/stops?swLat=33.0&swLng=131.5&neLat=33.3&neLng=131.7", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp.Body); e.Error != "停留所の取得に失敗しました" {
		t.Errorf("got %q", e.Error)
	}
}

func TestTriggerImportDisabledWithoutKey(t *testing.T) {
	// no ADMIN_API_KEY configured: even an empty header must not pass
	app := newTestApp("")
	req := httptest.NewRequest("POST", "/api/gtfs/import", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}
