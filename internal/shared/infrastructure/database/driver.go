package database

import (
	"fmt"
	"strings"
)

// Driver is a storage backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
	// DriverAuto picks the backend from the connection URL.
	DriverAuto Driver = "auto"
)

func (d Driver) String() string {
	return string(d)
}

// ParseDriver accepts the DATABASE_DRIVER spellings operators use.
// Empty means DriverAuto.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return DriverAuto, nil
	case "postgres", "postgresql", "pg", "pgx":
		return DriverPostgres, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver: %s", s)
}

// DetectDriver infers the driver from a connection string. An empty URL
// selects SQLite so the service runs without external infrastructure.
func DetectDriver(url string) Driver {
	switch {
	case url == "":
		return DriverSQLite
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"),
		strings.HasSuffix(url, ".db"), strings.HasSuffix(url, ".sqlite"), strings.HasSuffix(url, ".sqlite3"):
		return DriverSQLite
	}
	// libpq keyword strings ("host=... dbname=...")
	return DriverPostgres
}

// IsValid reports whether d names a concrete backend.
func (d Driver) IsValid() bool {
	return d == DriverPostgres || d == DriverSQLite
}
