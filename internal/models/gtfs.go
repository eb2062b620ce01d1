package models

import "time"

// Stop is a bus stop or station imported from a GTFS feed. Identifiers are
// agency-prefixed ("oitabus_1234") so operators share one table safely.
type Stop struct {
	StopID        string  `json:"stop_id"`
	Code          string  `json:"stop_code,omitempty"`
	Name          string  `json:"stop_name"`
	Latitude      float64 `json:"stop_lat"`
	Longitude     float64 `json:"stop_lon"`
	ZoneID        string  `json:"zone_id,omitempty"`
	LocationType  int     `json:"location_type"`
	ParentStation string  `json:"parent_station,omitempty"`
}

// Route is a bus line.
type Route struct {
	RouteID   string `json:"route_id"`
	AgencyID  string `json:"agency_id,omitempty"`
	ShortName string `json:"route_short_name,omitempty"`
	LongName  string `json:"route_long_name,omitempty"`
	RouteType int    `json:"route_type"`
	Color     string `json:"route_color,omitempty"`
	TextColor string `json:"route_text_color,omitempty"`
}

// Calendar is a service validity window with day-of-week flags.
// Dates use the GTFS YYYYMMDD string form, both ends inclusive.
type Calendar struct {
	ServiceID string `json:"service_id"`
	Monday    bool   `json:"monday"`
	Tuesday   bool   `json:"tuesday"`
	Wednesday bool   `json:"wednesday"`
	Thursday  bool   `json:"thursday"`
	Friday    bool   `json:"friday"`
	Saturday  bool   `json:"saturday"`
	Sunday    bool   `json:"sunday"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Trip is one scheduled run of a route under a service calendar.
type Trip struct {
	TripID      string `json:"trip_id"`
	RouteID     string `json:"route_id"`
	ServiceID   string `json:"service_id"`
	Headsign    string `json:"trip_headsign,omitempty"`
	DirectionID int    `json:"direction_id"`
	ShapeID     string `json:"shape_id,omitempty"`
}

// StopTime is one visit of a trip at a stop. Times keep the GTFS HH:MM:SS
// string form and may exceed 24:00 for after-midnight runs.
type StopTime struct {
	TripID        string `json:"trip_id"`
	ArrivalTime   string `json:"arrival_time"`
	DepartureTime string `json:"departure_time"`
	StopID        string `json:"stop_id"`
	StopSequence  int    `json:"stop_sequence"`
}

// ImportMetadata is the audit row written after each import run.
type ImportMetadata struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id,omitempty"`
	Source     string    `json:"source"`
	ImportedAt time.Time `json:"imported_at"`
	FeedURL    string    `json:"feed_url,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

// Departure is one upcoming departure shown in the stop timetable.
type Departure struct {
	DepartureTime string `json:"departure_time"`
	TripHeadsign  string `json:"trip_headsign,omitempty"`
}

// RouteTimetable groups a stop's departures by the route serving it.
type RouteTimetable struct {
	RouteID    string      `json:"route_id"`
	ShortName  string      `json:"route_short_name,omitempty"`
	LongName   string      `json:"route_long_name,omitempty"`
	Color      string      `json:"route_color,omitempty"`
	TextColor  string      `json:"route_text_color,omitempty"`
	Departures []Departure `json:"departures"`
}

// TimetableMetadata records how the timetable was resolved.
type TimetableMetadata struct {
	Date             string `json:"date"`
	Weekday          string `json:"weekday"`
	CalendarFallback bool   `json:"calendar_fallback"`
}

// StopTimetable is the stop-timetable endpoint payload.
type StopTimetable struct {
	Stop     Stop              `json:"stop"`
	Routes   []RouteTimetable  `json:"routes"`
	Metadata TimetableMetadata `json:"metadata"`
}

// StopsResponse wraps the bounding-box query result.
type StopsResponse struct {
	Stops []Stop `json:"stops"`
}

// ErrorResponse is the common error payload. Messages are user-facing
// Japanese; backend detail stays in the server log.
type ErrorResponse struct {
	Error string `json:"error"`
}
