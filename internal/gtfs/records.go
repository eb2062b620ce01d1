package gtfs

import (
	"math"
	"strconv"
	"strings"

	"github.com/yourorg/tokudoku/internal/models"
)

// The FromRow functions sit on the boundary between the untyped parsed rows
// and the storage-ready records: required fields are checked, numerics are
// coerced with defined defaults, and every identifier is namespaced here so
// no call site can forget a reference.

// StopFromRow coerces a stops.txt row. Rows without an id or with
// non-finite coordinates are dropped.
func StopFromRow(agencyID string, row Row) (models.Stop, bool) {
	id := row.Get("stop_id")
	if id == "" {
		return models.Stop{}, false
	}
	lat, ok := parseFinite(row.Get("stop_lat"))
	if !ok {
		return models.Stop{}, false
	}
	lon, ok := parseFinite(row.Get("stop_lon"))
	if !ok {
		return models.Stop{}, false
	}
	return models.Stop{
		StopID:        Namespace(agencyID, id),
		Code:          row.Get("stop_code"),
		Name:          row.Get("stop_name"),
		Latitude:      lat,
		Longitude:     lon,
		ZoneID:        row.Get("zone_id"),
		LocationType:  parseIntDefault(row.Get("location_type"), 0),
		ParentStation: Namespace(agencyID, row.Get("parent_station")),
	}, true
}

// RouteFromRow coerces a routes.txt row.
func RouteFromRow(agencyID string, row Row) (models.Route, bool) {
	id := row.Get("route_id")
	if id == "" {
		return models.Route{}, false
	}
	return models.Route{
		RouteID:   Namespace(agencyID, id),
		AgencyID:  agencyID,
		ShortName: row.Get("route_short_name"),
		LongName:  row.Get("route_long_name"),
		RouteType: parseIntDefault(row.Get("route_type"), 3),
		Color:     row.Get("route_color"),
		TextColor: row.Get("route_text_color"),
	}, true
}

// CalendarFromRow coerces a calendar.txt row. Day flags are active only for
// the literal "1".
func CalendarFromRow(agencyID string, row Row) (models.Calendar, bool) {
	id := row.Get("service_id")
	if id == "" {
		return models.Calendar{}, false
	}
	return models.Calendar{
		ServiceID: Namespace(agencyID, id),
		Monday:    row.Get("monday") == "1",
		Tuesday:   row.Get("tuesday") == "1",
		Wednesday: row.Get("wednesday") == "1",
		Thursday:  row.Get("thursday") == "1",
		Friday:    row.Get("friday") == "1",
		Saturday:  row.Get("saturday") == "1",
		Sunday:    row.Get("sunday") == "1",
		StartDate: row.Get("start_date"),
		EndDate:   row.Get("end_date"),
	}, true
}

// TripFromRow coerces a trips.txt row.
func TripFromRow(agencyID string, row Row) (models.Trip, bool) {
	id := row.Get("trip_id")
	routeID := row.Get("route_id")
	if id == "" || routeID == "" {
		return models.Trip{}, false
	}
	return models.Trip{
		TripID:      Namespace(agencyID, id),
		RouteID:     Namespace(agencyID, routeID),
		ServiceID:   Namespace(agencyID, row.Get("service_id")),
		Headsign:    row.Get("trip_headsign"),
		DirectionID: parseIntDefault(row.Get("direction_id"), 0),
		ShapeID:     row.Get("shape_id"),
	}, true
}

// StopTimeFromRow coerces a stop_times.txt row. Departure/arrival strings are
// stored as-is; GTFS allows values past 24:00 for after-midnight runs.
func StopTimeFromRow(agencyID string, row Row) (models.StopTime, bool) {
	tripID := row.Get("trip_id")
	stopID := row.Get("stop_id")
	if tripID == "" || stopID == "" {
		return models.StopTime{}, false
	}
	return models.StopTime{
		TripID:        Namespace(agencyID, tripID),
		ArrivalTime:   normalizeTime(row.Get("arrival_time")),
		DepartureTime: normalizeTime(row.Get("departure_time")),
		StopID:        Namespace(agencyID, stopID),
		StopSequence:  parseIntDefault(row.Get("stop_sequence"), 0),
	}, true
}

// normalizeTime zero-pads a single-digit hour. Departures are stored and
// ordered as text, and "9:00:00" would sort after "10:00:00" otherwise.
func normalizeTime(s string) string {
	if strings.IndexByte(s, ':') == 1 {
		return "0" + s
	}
	return s
}

func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
