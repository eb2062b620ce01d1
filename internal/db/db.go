package db

import (
	"database/sql"
	"log"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/yourorg/tokudoku/internal/config"
)

// Connect returns a Postgres connection using env vars.
func Connect() (*sql.DB, error) {
	return sql.Open("pgx", config.DatabaseURL())
}

// EnsureSchema creates the GTFS tables if they do not exist. Managed
// deployments that run migrations elsewhere set DB_SKIP_SCHEMA.
func EnsureSchema(db *sql.DB) error {
	if skip := strings.TrimSpace(os.Getenv("DB_SKIP_SCHEMA")); strings.EqualFold(skip, "true") || skip == "1" {
		log.Printf("EnsureSchema: skipped (DB_SKIP_SCHEMA=%q)", skip)
		return nil
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS gtfs_stops (
			stop_id TEXT PRIMARY KEY,
			stop_code TEXT,
			stop_name TEXT NOT NULL,
			stop_lat DOUBLE PRECISION NOT NULL,
			stop_lon DOUBLE PRECISION NOT NULL,
			zone_id TEXT,
			location_type INTEGER,
			parent_station TEXT
		);
	`); err != nil {
		return err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS gtfs_routes (
			route_id TEXT PRIMARY KEY,
			agency_id TEXT,
			route_short_name TEXT,
			route_long_name TEXT,
			route_type INTEGER NOT NULL DEFAULT 3,
			route_color TEXT,
			route_text_color TEXT
		);
	`); err != nil {
		return err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS gtfs_calendar (
			service_id TEXT PRIMARY KEY,
			monday BOOLEAN NOT NULL DEFAULT FALSE,
			tuesday BOOLEAN NOT NULL DEFAULT FALSE,
			wednesday BOOLEAN NOT NULL DEFAULT FALSE,
			thursday BOOLEAN NOT NULL DEFAULT FALSE,
			friday BOOLEAN NOT NULL DEFAULT FALSE,
			saturday BOOLEAN NOT NULL DEFAULT FALSE,
			sunday BOOLEAN NOT NULL DEFAULT FALSE,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL
		);
	`); err != nil {
		return err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS gtfs_trips (
			trip_id TEXT PRIMARY KEY,
			route_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			trip_headsign TEXT,
			direction_id INTEGER NOT NULL DEFAULT 0,
			shape_id TEXT
		);
	`); err != nil {
		return err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS gtfs_stop_times (
			id BIGSERIAL PRIMARY KEY,
			trip_id TEXT NOT NULL,
			arrival_time TEXT,
			departure_time TEXT,
			stop_id TEXT NOT NULL,
			stop_sequence INTEGER NOT NULL DEFAULT 0
		);
	`); err != nil {
		return err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS gtfs_import_metadata (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT,
			source TEXT NOT NULL,
			imported_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			feed_url TEXT,
			notes TEXT
		);
	`); err != nil {
		return err
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_gtfs_stops_latlon ON gtfs_stops (stop_lat, stop_lon)",
		"CREATE INDEX IF NOT EXISTS idx_gtfs_stop_times_stop ON gtfs_stop_times (stop_id)",
		"CREATE INDEX IF NOT EXISTS idx_gtfs_stop_times_trip ON gtfs_stop_times (trip_id)",
		"CREATE INDEX IF NOT EXISTS idx_gtfs_trips_route ON gtfs_trips (route_id)",
	}
	for _, stmt := range indexes {
		if _, err := db.Exec(stmt); err != nil {
			errMsg := strings.ToLower(err.Error())
			if strings.Contains(errMsg, "permission denied") {
				log.Printf("EnsureSchema: unable to create index (permission denied): %v", err)
				continue
			}
			return err
		}
	}

	return nil
}
