package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// DuckDB is an embedded spatial store, used for local development and demos.
type DuckDB struct {
	db *sql.DB
}

// NewDuckDB opens (or creates) <DataDir>/duckdb/hazard.duckdb and loads the
// spatial extension. A DSN overrides the file location; ":memory:" is allowed.
func NewDuckDB(cfg Config) (*DuckDB, error) {
	dbPath := cfg.DSN
	if dbPath == "" {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		dbPath = filepath.Join(duckdbDir, "hazard.duckdb")
	}
	if dbPath == ":memory:" {
		dbPath = ""
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	if _, err := db.Exec("INSTALL spatial; LOAD spatial;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load spatial extension: %w", err)
	}

	return &DuckDB{db: db}, nil
}

// Driver returns "duckdb".
func (d *DuckDB) Driver() string { return DriverDuckDB }

// Ping tests the connection.
func (d *DuckDB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database.
func (d *DuckDB) Close() error {
	return d.db.Close()
}

// Exec runs a statement that returns no rows, such as the schema and seed
// scripts used for demos.
func (d *DuckDB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := d.db.ExecContext(ctx, query, args...)
	return err
}

// Query executes sql and reads every row.
func (d *DuckDB) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalize(v)
		}
		res.Rows = append(res.Rows, values)
	}

	return res, rows.Err()
}
