package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Database is the common interface for SQLite and DuckDB
type Database interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	Close() error
	Path() string
	GetVersion() (int, error)
	Driver() Driver
}

// Ensure both types implement Database interface
var _ Database = (*DB)(nil)
var _ Database = (*DuckDB)(nil)

// Driver names a storage engine.
type Driver string

const (
	DriverSQLite Driver = "sqlite3"
	DriverDuckDB Driver = "duckdb"
)

// OpenDriver opens path with the named driver. An empty driver means
// SQLite.
func OpenDriver(driver Driver, path string) (Database, error) {
	switch driver {
	case "", DriverSQLite:
		return Open(path)
	case DriverDuckDB:
		return OpenDuckDB(path)
	}
	return nil, fmt.Errorf("지원하지 않는 DB 드라이버: %s", driver)
}

// OpenAuto opens path with driver and falls back to SQLite when DuckDB
// cannot be opened. The returned Driver is the one actually in use.
func OpenAuto(driver Driver, path string) (Database, Driver, error) {
	d, err := OpenDriver(driver, path)
	if err == nil {
		return d, d.Driver(), nil
	}
	if driver != DriverDuckDB {
		return nil, "", err
	}

	// DuckDB 실패 시 SQLite 폴백
	sqliteDB, sqliteErr := Open(path + ".sqlite")
	if sqliteErr != nil {
		return nil, "", err // 원래 DuckDB 에러 반환
	}
	return sqliteDB, DriverSQLite, nil
}
