// Package store provides read access to the relational geohazard store.
//
// Two drivers are available: "postgres" talks to PostGIS through pgxpool,
// "duckdb" opens an embedded DuckDB database with the spatial extension for
// local development. Both accept the same SQL: "$n" placeholders, ILIKE,
// ST_AsGeoJSON, ST_GeomFromGeoJSON and ST_Intersects.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Driver names.
const (
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
)

// ErrUnavailable is returned when no store is configured.
var ErrUnavailable = errors.New("store unavailable")

// Store runs read-only queries.
type Store interface {
	Query(ctx context.Context, sql string, args ...any) (*Result, error)
	Ping(ctx context.Context) error
	Driver() string
	Close() error
}

// Result is a fully read query result with column order preserved.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Config selects and configures a driver.
type Config struct {
	Driver          string
	DSN             string
	DataDir         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Open connects to the configured driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return NewPostgres(ctx, cfg)
	case DriverDuckDB:
		return NewDuckDB(cfg)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// normalize converts driver-specific numeric wrappers to float64.
func normalize(v any) any {
	switch n := v.(type) {
	case interface{ Float64() float64 }:
		return n.Float64()
	case interface{ Float64() (float64, error) }:
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return v
}
