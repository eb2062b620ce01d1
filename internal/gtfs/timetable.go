package gtfs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/yourorg/tokudoku/internal/models"
)

// timetableRowCap bounds the stop_times join; a stop with more scheduled
// visits than this shows the earliest departures only.
const timetableRowCap = 500

// ErrStopNotFound signals an unknown stop id.
var ErrStopNotFound = errors.New("gtfs: stop not found")

// jst is the calendar zone for every feed in the registry. "Today" is always
// evaluated in Japan time, independent of where the server runs.
var jst = loadJST()

func loadJST() *time.Location {
	if loc, err := time.LoadLocation("Asia/Tokyo"); err == nil {
		return loc
	}
	return time.FixedZone("JST", 9*60*60)
}

// TimetableService resolves stop-level departure boards from the imported
// tables. Every call re-runs the joins; the dataset is small enough and the
// import cycle infrequent enough that no cache sits in between.
type TimetableService struct {
	db  *sql.DB
	now func() time.Time
}

// NewTimetableService builds a resolver over the shared connection.
func NewTimetableService(db *sql.DB) *TimetableService {
	return &TimetableService{db: db, now: time.Now}
}

type departureRow struct {
	departureTime string
	headsign      string
	serviceID     string
	route         models.Route
}

// Resolve returns the departure board for one stop: the stop record plus the
// routes serving it, each with today's departures.
func (s *TimetableService) Resolve(ctx context.Context, stopID string) (*models.StopTimetable, error) {
	stop, err := s.fetchStop(ctx, stopID)
	if err != nil {
		return nil, err
	}

	rows, err := s.fetchDepartures(ctx, stopID)
	if err != nil {
		return nil, err
	}

	referenced := referencedServices(rows)
	calendars, err := s.fetchCalendars(ctx, referenced)
	if err != nil {
		return nil, err
	}

	today := s.now().In(jst)
	active, fallback := activeServices(calendars, referenced, today)
	groups := groupDepartures(rows, active)
	sortRouteGroups(groups)

	return &models.StopTimetable{
		Stop:   *stop,
		Routes: groups,
		Metadata: models.TimetableMetadata{
			Date:             today.Format("2006-01-02"),
			Weekday:          strings.ToLower(today.Weekday().String()),
			CalendarFallback: fallback,
		},
	}, nil
}

func (s *TimetableService) fetchStop(ctx context.Context, stopID string) (*models.Stop, error) {
	var stop models.Stop
	var code, zone, parent sql.NullString
	var locationType sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT stop_id, stop_code, stop_name, stop_lat, stop_lon, zone_id, location_type, parent_station
		FROM gtfs_stops
		WHERE stop_id = $1
	`, stopID).Scan(&stop.StopID, &code, &stop.Name, &stop.Latitude, &stop.Longitude, &zone, &locationType, &parent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStopNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gtfs timetable: fetch stop: %w", err)
	}
	stop.Code = code.String
	stop.ZoneID = zone.String
	stop.ParentStation = parent.String
	stop.LocationType = int(locationType.Int64)
	return &stop, nil
}

// fetchDepartures joins stop_times to trips and routes. Inner joins drop
// orphaned stop_times whose trip or route never resolved.
func (s *TimetableService) fetchDepartures(ctx context.Context, stopID string) ([]departureRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(st.departure_time, ''), COALESCE(t.trip_headsign, ''), t.service_id,
		       r.route_id, COALESCE(r.agency_id, ''), COALESCE(r.route_short_name, ''),
		       COALESCE(r.route_long_name, ''), r.route_type,
		       COALESCE(r.route_color, ''), COALESCE(r.route_text_color, '')
		FROM gtfs_stop_times st
		JOIN gtfs_trips t ON t.trip_id = st.trip_id
		JOIN gtfs_routes r ON r.route_id = t.route_id
		WHERE st.stop_id = $1
		ORDER BY st.departure_time ASC
		LIMIT $2
	`, stopID, timetableRowCap)
	if err != nil {
		return nil, fmt.Errorf("gtfs timetable: fetch departures: %w", err)
	}
	defer rows.Close()

	var out []departureRow
	for rows.Next() {
		var d departureRow
		if err := rows.Scan(&d.departureTime, &d.headsign, &d.serviceID,
			&d.route.RouteID, &d.route.AgencyID, &d.route.ShortName, &d.route.LongName,
			&d.route.RouteType, &d.route.Color, &d.route.TextColor); err != nil {
			return nil, fmt.Errorf("gtfs timetable: scan departure: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gtfs timetable: iterate departures: %w", err)
	}
	return out, nil
}

func (s *TimetableService) fetchCalendars(ctx context.Context, serviceIDs []string) ([]models.Calendar, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(serviceIDs))
	args := make([]any, len(serviceIDs))
	for i, id := range serviceIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT service_id, monday, tuesday, wednesday, thursday, friday, saturday, sunday, start_date, end_date
		FROM gtfs_calendar
		WHERE service_id IN (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("gtfs timetable: fetch calendars: %w", err)
	}
	defer rows.Close()

	var out []models.Calendar
	for rows.Next() {
		var c models.Calendar
		if err := rows.Scan(&c.ServiceID, &c.Monday, &c.Tuesday, &c.Wednesday, &c.Thursday,
			&c.Friday, &c.Saturday, &c.Sunday, &c.StartDate, &c.EndDate); err != nil {
			return nil, fmt.Errorf("gtfs timetable: scan calendar: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gtfs timetable: iterate calendars: %w", err)
	}
	return out, nil
}

func referencedServices(rows []departureRow) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		if r.serviceID == "" || seen[r.serviceID] {
			continue
		}
		seen[r.serviceID] = true
		out = append(out, r.serviceID)
	}
	return out
}

// serviceActiveOn reports whether a calendar runs on the given day: the date
// must fall inside [start_date, end_date] and the weekday flag must be set.
func serviceActiveOn(c models.Calendar, day time.Time) bool {
	date := day.Format("20060102")
	if c.StartDate != "" && date < c.StartDate {
		return false
	}
	if c.EndDate != "" && date > c.EndDate {
		return false
	}
	switch day.Weekday() {
	case time.Monday:
		return c.Monday
	case time.Tuesday:
		return c.Tuesday
	case time.Wednesday:
		return c.Wednesday
	case time.Thursday:
		return c.Thursday
	case time.Friday:
		return c.Friday
	case time.Saturday:
		return c.Saturday
	default:
		return c.Sunday
	}
}

// activeServices filters the referenced services by their calendars. When
// nothing survives the filter (commonly: the agency ships no calendar.txt at
// all), every referenced service is treated as active: missing calendar data
// must not hide real departures. That fallback is deliberate product
// behavior, not a bug to fix.
func activeServices(calendars []models.Calendar, referenced []string, day time.Time) (map[string]bool, bool) {
	active := make(map[string]bool)
	for _, c := range calendars {
		if serviceActiveOn(c, day) {
			active[c.ServiceID] = true
		}
	}
	if len(active) > 0 {
		return active, false
	}
	for _, id := range referenced {
		active[id] = true
	}
	return active, true
}

// groupDepartures buckets the surviving rows by route, keeping the
// departure-time order the query produced.
func groupDepartures(rows []departureRow, active map[string]bool) []models.RouteTimetable {
	byRoute := make(map[string]int)
	groups := make([]models.RouteTimetable, 0)
	for _, r := range rows {
		if !active[r.serviceID] {
			continue
		}
		idx, ok := byRoute[r.route.RouteID]
		if !ok {
			groups = append(groups, models.RouteTimetable{
				RouteID:   r.route.RouteID,
				ShortName: r.route.ShortName,
				LongName:  r.route.LongName,
				Color:     r.route.Color,
				TextColor: r.route.TextColor,
			})
			idx = len(groups) - 1
			byRoute[r.route.RouteID] = idx
		}
		groups[idx].Departures = append(groups[idx].Departures, models.Departure{
			DepartureTime: r.departureTime,
			TripHeadsign:  r.headsign,
		})
	}
	return groups
}

// sortRouteGroups orders route groups by display name with Japanese
// collation, so 方面 names sort the way riders expect.
func sortRouteGroups(groups []models.RouteTimetable) {
	col := collate.New(language.Japanese)
	sort.SliceStable(groups, func(i, j int) bool {
		return col.CompareString(routeDisplayName(groups[i]), routeDisplayName(groups[j])) < 0
	})
}

func routeDisplayName(g models.RouteTimetable) string {
	if g.ShortName != "" {
		return g.ShortName
	}
	return g.LongName
}
