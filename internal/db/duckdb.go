package db

import (
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// 감사 로그 스키마 (DuckDB)
var schemaDuckDB = []string{
	`CREATE TABLE IF NOT EXISTS metadata (
    key VARCHAR PRIMARY KEY,
    value VARCHAR,
    updated_at TIMESTAMP DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS tool_calls (
    id VARCHAR PRIMARY KEY,
    caller VARCHAR NOT NULL,
    tool VARCHAR NOT NULL,
    action VARCHAR,
    entity VARCHAR,
    is_error INTEGER DEFAULT 0,
    duration_ms BIGINT DEFAULT 0,
    created_at BIGINT NOT NULL
)`,
}

// DuckDB wraps a DuckDB database holding the same tables as DB.
type DuckDB struct {
	*sql.DB
	path string
}

// OpenDuckDB opens or creates a DuckDB database
func OpenDuckDB(path string) (*DuckDB, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("DuckDB 열기 실패: %w", err)
	}

	// 연결 테스트
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("DuckDB 연결 실패: %w", err)
	}

	d := &DuckDB{DB: db, path: path}

	// 스키마 초기화
	if err := d.Init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("스키마 초기화 실패: %w", err)
	}

	return d, nil
}

// Init initializes the DuckDB schema
func (d *DuckDB) Init() error {
	if err := execAll(d.DB, schemaDuckDB); err != nil {
		return fmt.Errorf("스키마 적용 실패: %w", err)
	}

	// 버전 저장 (DuckDB는 now() 사용)
	_, err := d.Exec(`
		INSERT INTO metadata (key, value, updated_at)
		VALUES ('schema_version', ?, now())
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = now()
	`, fmt.Sprint(schemaVersion))
	if err != nil {
		return fmt.Errorf("버전 저장 실패: %w", err)
	}
	return nil
}

// Path returns the database file path
func (d *DuckDB) Path() string {
	return d.path
}

// GetVersion returns current schema version
func (d *DuckDB) GetVersion() (int, error) {
	return readVersion(d.DB)
}

// Driver returns DriverDuckDB.
func (d *DuckDB) Driver() Driver {
	return DriverDuckDB
}
