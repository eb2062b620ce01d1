package gtfs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/tokudoku/internal/config"
	"github.com/yourorg/tokudoku/internal/models"
)

const (
	// batchSize bounds one INSERT statement; large feeds go in slices.
	batchSize = 500
	// downloadTimeout caps a single feed download so one unresponsive
	// provider cannot hang the whole run.
	downloadTimeout = 30 * time.Second
)

// Loader downloads agency feeds and imports them into the database.
type Loader struct {
	httpClient *http.Client
}

// NewLoader builds a loader. A nil client gets the default with the
// per-download timeout applied.
func NewLoader(client *http.Client) *Loader {
	if client == nil {
		client = &http.Client{Timeout: downloadTimeout}
	}
	return &Loader{httpClient: client}
}

// TableResult accumulates the outcome of loading one table.
type TableResult struct {
	Table         string `json:"table"`
	Rows          int    `json:"rows"`
	Batches       int    `json:"batches"`
	FailedBatches int    `json:"failed_batches,omitempty"`
}

// AgencyResult is the per-agency outcome of an import run. Failures stay
// inside the result so one broken feed never aborts its siblings.
type AgencyResult struct {
	AgencyID string        `json:"agency_id"`
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Stops    int           `json:"stops"`
	Error    string        `json:"error,omitempty"`
	Tables   []TableResult `json:"tables,omitempty"`
}

// ImportStops is the lightweight variant used by the HTTP trigger: only
// stops.txt is imported (idempotent upsert), stop_times are untouched.
func (l *Loader) ImportStops(ctx context.Context, db *sql.DB, agency config.Agency) AgencyResult {
	result := AgencyResult{AgencyID: agency.ID, Name: agency.Name}

	archive, err := l.fetchArchive(ctx, agency.FeedURL)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	rows, err := l.tableRows(archive, agency.ID, "stops.txt")
	if err != nil {
		result.Error = err.Error()
		return result
	}
	stops := coerceStops(agency.ID, rows)
	tr := upsertStops(ctx, db, stops)
	result.Tables = append(result.Tables, tr)
	result.Stops = tr.Rows
	if tableWroteNothing(tr) {
		result.Error = fmt.Sprintf("gtfs loader: no stops written (%d batches failed)", tr.FailedBatches)
		return result
	}
	result.Success = true
	return result
}

// ImportAgency is the full five-table import used by the CLI. Tables load in
// dependency order (stops/routes/calendar, then trips, then stop_times) so
// references resolve at write time. The caller runs PurgeAll first when a
// full refresh is wanted; stop_times have no natural key across re-imports.
func (l *Loader) ImportAgency(ctx context.Context, db *sql.DB, agency config.Agency) AgencyResult {
	result := AgencyResult{AgencyID: agency.ID, Name: agency.Name}

	archive, err := l.fetchArchive(ctx, agency.FeedURL)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	tables := make(map[string][]Row, 5)
	for _, name := range []string{"stops.txt", "routes.txt", "calendar.txt", "trips.txt", "stop_times.txt"} {
		rows, err := l.tableRows(archive, agency.ID, name)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		tables[name] = rows
	}

	stops := coerceStops(agency.ID, tables["stops.txt"])
	routes := coerceRoutes(agency.ID, tables["routes.txt"])
	calendars := coerceCalendars(agency.ID, tables["calendar.txt"])
	trips := coerceTrips(agency.ID, tables["trips.txt"])
	stopTimes := coerceStopTimes(agency.ID, tables["stop_times.txt"])

	log.Printf("📦 %s: %d stops, %d routes, %d calendars, %d trips, %d stop_times parsed",
		agency.ID, len(stops), len(routes), len(calendars), len(trips), len(stopTimes))

	tr := upsertStops(ctx, db, stops)
	result.Tables = append(result.Tables, tr)
	result.Stops = tr.Rows
	result.Tables = append(result.Tables, upsertRoutes(ctx, db, routes))
	result.Tables = append(result.Tables, upsertCalendars(ctx, db, calendars))
	result.Tables = append(result.Tables, upsertTrips(ctx, db, trips))
	result.Tables = append(result.Tables, insertStopTimes(ctx, db, stopTimes))

	result.Success = true
	return result
}

func (l *Loader) fetchArchive(ctx context.Context, url string) (*Archive, error) {
	data, err := l.download(ctx, url)
	if err != nil {
		return nil, err
	}
	return OpenArchive(data)
}

func (l *Loader) download(ctx context.Context, url string) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("gtfs loader: feed url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("gtfs loader: build request for %s: %w", url, err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gtfs loader: download feed %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gtfs loader: download feed %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gtfs loader: read feed %s: %w", url, err)
	}
	return data, nil
}

// tableRows reads one member table, treating a missing member as an empty
// table. Some agencies omit optional files. An unreadable member (truncated
// or corrupt) is an error that fails the agency.
func (l *Loader) tableRows(archive *Archive, agencyID, name string) ([]Row, error) {
	rows, err := archive.Table(name)
	if err != nil {
		if errors.Is(err, ErrFileMissing) {
			log.Printf("⚠️ %s: %s not in feed, skipping", agencyID, name)
			return nil, nil
		}
		return nil, err
	}
	return rows, nil
}

func coerceStops(agencyID string, rows []Row) []models.Stop {
	out := make([]models.Stop, 0, len(rows))
	for _, row := range rows {
		if s, ok := StopFromRow(agencyID, row); ok {
			out = append(out, s)
		}
	}
	return out
}

func coerceRoutes(agencyID string, rows []Row) []models.Route {
	out := make([]models.Route, 0, len(rows))
	for _, row := range rows {
		if r, ok := RouteFromRow(agencyID, row); ok {
			out = append(out, r)
		}
	}
	return out
}

func coerceCalendars(agencyID string, rows []Row) []models.Calendar {
	out := make([]models.Calendar, 0, len(rows))
	for _, row := range rows {
		if c, ok := CalendarFromRow(agencyID, row); ok {
			out = append(out, c)
		}
	}
	return out
}

func coerceTrips(agencyID string, rows []Row) []models.Trip {
	out := make([]models.Trip, 0, len(rows))
	for _, row := range rows {
		if t, ok := TripFromRow(agencyID, row); ok {
			out = append(out, t)
		}
	}
	return out
}

func coerceStopTimes(agencyID string, rows []Row) []models.StopTime {
	out := make([]models.StopTime, 0, len(rows))
	for _, row := range rows {
		if st, ok := StopTimeFromRow(agencyID, row); ok {
			out = append(out, st)
		}
	}
	return out
}

// execBatches runs build over fixed-size slices of rows, logging and counting
// failed batches instead of aborting. Partial import beats total abort here.
func execBatches(ctx context.Context, db *sql.DB, table string, total int, build func(start, end int) (string, []any)) TableResult {
	res := TableResult{Table: table}
	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		query, args := build(start, end)
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			log.Printf("❌ gtfs loader: %s batch %d failed: %v", table, res.Batches, err)
			res.FailedBatches++
		} else {
			res.Rows += end - start
		}
		res.Batches++
	}
	return res
}

// tableWroteNothing reports a load where batches ran but not one row landed
// (typically: database unreachable). A feed with zero parsed rows is not a
// failure.
func tableWroteNothing(tr TableResult) bool {
	return tr.Batches > 0 && tr.Rows == 0
}

func upsertStops(ctx context.Context, db *sql.DB, stops []models.Stop) TableResult {
	return execBatches(ctx, db, "gtfs_stops", len(stops), func(start, end int) (string, []any) {
		return buildStopUpsert(stops[start:end])
	})
}

func upsertRoutes(ctx context.Context, db *sql.DB, routes []models.Route) TableResult {
	return execBatches(ctx, db, "gtfs_routes", len(routes), func(start, end int) (string, []any) {
		return buildRouteUpsert(routes[start:end])
	})
}

func upsertCalendars(ctx context.Context, db *sql.DB, calendars []models.Calendar) TableResult {
	return execBatches(ctx, db, "gtfs_calendar", len(calendars), func(start, end int) (string, []any) {
		return buildCalendarUpsert(calendars[start:end])
	})
}

func upsertTrips(ctx context.Context, db *sql.DB, trips []models.Trip) TableResult {
	return execBatches(ctx, db, "gtfs_trips", len(trips), func(start, end int) (string, []any) {
		return buildTripUpsert(trips[start:end])
	})
}

func insertStopTimes(ctx context.Context, db *sql.DB, stopTimes []models.StopTime) TableResult {
	return execBatches(ctx, db, "gtfs_stop_times", len(stopTimes), func(start, end int) (string, []any) {
		return buildStopTimeInsert(stopTimes[start:end])
	})
}

func buildStopUpsert(batch []models.Stop) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO gtfs_stops (stop_id, stop_code, stop_name, stop_lat, stop_lon, zone_id, location_type, parent_station) VALUES ")
	args := make([]any, 0, len(batch)*8)
	for i, s := range batch {
		writeValueTuple(&b, i, 8)
		args = append(args, s.StopID, nullable(s.Code), s.Name, s.Latitude, s.Longitude,
			nullable(s.ZoneID), s.LocationType, nullable(s.ParentStation))
	}
	b.WriteString(" ON CONFLICT (stop_id) DO UPDATE SET" +
		" stop_code = EXCLUDED.stop_code, stop_name = EXCLUDED.stop_name," +
		" stop_lat = EXCLUDED.stop_lat, stop_lon = EXCLUDED.stop_lon," +
		" zone_id = EXCLUDED.zone_id, location_type = EXCLUDED.location_type," +
		" parent_station = EXCLUDED.parent_station")
	return b.String(), args
}

func buildRouteUpsert(batch []models.Route) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO gtfs_routes (route_id, agency_id, route_short_name, route_long_name, route_type, route_color, route_text_color) VALUES ")
	args := make([]any, 0, len(batch)*7)
	for i, r := range batch {
		writeValueTuple(&b, i, 7)
		args = append(args, r.RouteID, nullable(r.AgencyID), nullable(r.ShortName),
			nullable(r.LongName), r.RouteType, nullable(r.Color), nullable(r.TextColor))
	}
	b.WriteString(" ON CONFLICT (route_id) DO UPDATE SET" +
		" agency_id = EXCLUDED.agency_id, route_short_name = EXCLUDED.route_short_name," +
		" route_long_name = EXCLUDED.route_long_name, route_type = EXCLUDED.route_type," +
		" route_color = EXCLUDED.route_color, route_text_color = EXCLUDED.route_text_color")
	return b.String(), args
}

func buildCalendarUpsert(batch []models.Calendar) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO gtfs_calendar (service_id, monday, tuesday, wednesday, thursday, friday, saturday, sunday, start_date, end_date) VALUES ")
	args := make([]any, 0, len(batch)*10)
	for i, c := range batch {
		writeValueTuple(&b, i, 10)
		args = append(args, c.ServiceID, c.Monday, c.Tuesday, c.Wednesday, c.Thursday,
			c.Friday, c.Saturday, c.Sunday, c.StartDate, c.EndDate)
	}
	b.WriteString(" ON CONFLICT (service_id) DO UPDATE SET" +
		" monday = EXCLUDED.monday, tuesday = EXCLUDED.tuesday, wednesday = EXCLUDED.wednesday," +
		" thursday = EXCLUDED.thursday, friday = EXCLUDED.friday, saturday = EXCLUDED.saturday," +
		" sunday = EXCLUDED.sunday, start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date")
	return b.String(), args
}

func buildTripUpsert(batch []models.Trip) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO gtfs_trips (trip_id, route_id, service_id, trip_headsign, direction_id, shape_id) VALUES ")
	args := make([]any, 0, len(batch)*6)
	for i, t := range batch {
		writeValueTuple(&b, i, 6)
		args = append(args, t.TripID, t.RouteID, t.ServiceID, nullable(t.Headsign),
			t.DirectionID, nullable(t.ShapeID))
	}
	b.WriteString(" ON CONFLICT (trip_id) DO UPDATE SET" +
		" route_id = EXCLUDED.route_id, service_id = EXCLUDED.service_id," +
		" trip_headsign = EXCLUDED.trip_headsign, direction_id = EXCLUDED.direction_id," +
		" shape_id = EXCLUDED.shape_id")
	return b.String(), args
}

// stop_times has no stable key across re-imports, so this is a plain insert;
// PurgeAll handles the full-refresh delete beforehand.
func buildStopTimeInsert(batch []models.StopTime) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO gtfs_stop_times (trip_id, arrival_time, departure_time, stop_id, stop_sequence) VALUES ")
	args := make([]any, 0, len(batch)*5)
	for i, st := range batch {
		writeValueTuple(&b, i, 5)
		args = append(args, st.TripID, nullable(st.ArrivalTime), nullable(st.DepartureTime),
			st.StopID, st.StopSequence)
	}
	return b.String(), args
}

func writeValueTuple(b *strings.Builder, row, width int) {
	if row > 0 {
		b.WriteString(", ")
	}
	b.WriteByte('(')
	for j := 0; j < width; j++ {
		if j > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "$%d", row*width+j+1)
	}
	b.WriteByte(')')
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// purgeOrder deletes children before parents.
var purgeOrder = []string{"gtfs_stop_times", "gtfs_trips", "gtfs_calendar", "gtfs_routes", "gtfs_stops"}

// PurgeAll empties every GTFS table ahead of a full refresh.
func PurgeAll(ctx context.Context, db *sql.DB) error {
	for _, table := range purgeOrder {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("gtfs loader: purge %s: %w", table, err)
		}
	}
	return nil
}

// RecordImport writes the audit row for a run. Best-effort: a failed write is
// logged and never fails the import itself.
func RecordImport(ctx context.Context, db *sql.DB, meta models.ImportMetadata) {
	_, err := db.ExecContext(ctx,
		"INSERT INTO gtfs_import_metadata (run_id, source, imported_at, feed_url, notes) VALUES ($1, $2, $3, $4, $5)",
		nullable(meta.RunID), meta.Source, meta.ImportedAt, nullable(meta.FeedURL), nullable(meta.Notes))
	if err != nil {
		log.Printf("gtfs loader: record import metadata: %v", err)
	}
}

// SuccessNotes summarizes which agencies made it, for the audit row.
func SuccessNotes(results []AgencyResult) string {
	var ok, failed []string
	for _, r := range results {
		if r.Success {
			ok = append(ok, r.Name)
		} else {
			failed = append(failed, r.Name)
		}
	}
	notes := "成功: " + strings.Join(ok, ", ")
	if len(ok) == 0 {
		notes = "成功: なし"
	}
	if len(failed) > 0 {
		notes += " / 失敗: " + strings.Join(failed, ", ")
	}
	return notes
}
