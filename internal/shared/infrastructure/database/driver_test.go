package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestDetectDriver(t *testing.T) {
	tests := []struct {
		url      string
		expected Driver
	}{
		{"", DriverSQLite},
		{"postgres://cadence@localhost:5432/cadence", DriverPostgres},
		{"postgresql://cadence@localhost/cadence", DriverPostgres},
		{"sqlite:///var/lib/cadence.db", DriverSQLite},
		{"file:/tmp/usage.sqlite", DriverSQLite},
		{"/tmp/usage.sqlite3", DriverSQLite},
		{"host=localhost dbname=cadence", DriverPostgres},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectDriver(tt.url))
		})
	}
}

func TestDriver_IsValid(t *testing.T) {
	assert.True(t, DriverPostgres.IsValid())
	assert.True(t, DriverSQLite.IsValid())
	assert.False(t, DriverAuto.IsValid())
	assert.False(t, Driver("mysql").IsValid())
}

func TestParseDriver(t *testing.T) {
	for in, want := range map[string]Driver{
		"":           DriverAuto,
		"AUTO":       DriverAuto,
		"postgresql": DriverPostgres,
		"pgx":        DriverPostgres,
		" sqlite3 ":  DriverSQLite,
	} {
		got, err := ParseDriver(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDriver("mysql")
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestConfig_ResolvedDriver(t *testing.T) {
	assert.Equal(t, DriverSQLite, Config{}.ResolvedDriver())
	assert.Equal(t, DriverPostgres, Config{Driver: "auto", URL: "postgres://x"}.ResolvedDriver())
	assert.Equal(t, DriverSQLite, Config{Driver: DriverSQLite, URL: "postgres://x"}.ResolvedDriver())
	assert.Equal(t, DriverPostgres, Config{Driver: "postgresql"}.ResolvedDriver())
}

func TestNewConnection_UnsupportedDriver(t *testing.T) {
	_, err := NewConnection(context.Background(), Config{Driver: "mysql"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(sql.ErrNoRows))
	assert.True(t, IsNoRows(pgx.ErrNoRows))
	assert.False(t, IsNoRows(nil))
}
