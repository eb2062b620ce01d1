package config

import (
	"fmt"
	"os"
	"strings"
)

// Env reads an environment variable, falling back when unset or blank.
func Env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Port returns the HTTP listen port.
func Port() string {
	return Env("PORT", "8080")
}

// DatabaseURL builds the Postgres DSN. DATABASE_URL wins when set (managed
// hosting provides it as a single value); otherwise it is assembled from the
// individual DB_* variables.
func DatabaseURL() string {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v
	}
	user := Env("DB_USER", "postgres")
	pass := Env("DB_PASS", "")
	host := Env("DB_HOST", "127.0.0.1")
	port := Env("DB_PORT", "5432")
	name := Env("DB_NAME", "tokudoku")
	sslmode := Env("DB_SSLMODE", "disable")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, name, sslmode)
}

// AdminKey returns the shared secret required by the import trigger.
// Empty means the trigger is disabled (every request is rejected).
func AdminKey() string {
	return strings.TrimSpace(os.Getenv("ADMIN_API_KEY"))
}

// AgenciesFile returns the optional path of the YAML agency registry.
func AgenciesFile() string {
	return strings.TrimSpace(os.Getenv("GTFS_AGENCIES_FILE"))
}
