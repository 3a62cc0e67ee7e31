package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/logger"
)

// DB wraps a SQLite database connection.
type DB struct {
	sql *sql.DB
}

// resolvePath makes a relative path stable across go run / go build by
// anchoring it at the working directory.
func resolvePath(path string) string {
	if path == "" {
		path = "sectormap.db"
	}
	if filepath.IsAbs(path) {
		return path
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, path)
	}
	exe, _ := os.Executable()
	return filepath.Join(filepath.Dir(exe), path)
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string) (*DB, error) {
	path = resolvePath(path)
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	d := &DB{sql: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	logger.Success("DB", fmt.Sprintf("Opened %s", path))
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) migrate() error {
	version := 0
	// Try to read current version
	d.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS sectors (
				sector_id INTEGER PRIMARY KEY,
				x         INTEGER NOT NULL,
				y         INTEGER NOT NULL,
				world_x   REAL NOT NULL,
				world_y   REAL NOT NULL,
				region    TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_sectors_world ON sectors(world_x, world_y);

			CREATE TABLE IF NOT EXISTS warps (
				from_sector INTEGER NOT NULL,
				to_sector   INTEGER NOT NULL,
				ordinal     INTEGER NOT NULL,
				two_way     INTEGER NOT NULL DEFAULT 0,
				hyperlane   INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (from_sector, to_sector)
			);
			CREATE INDEX IF NOT EXISTS idx_warps_from ON warps(from_sector, ordinal);

			CREATE TABLE IF NOT EXISTS ports (
				sector_id INTEGER PRIMARY KEY,
				code      TEXT NOT NULL
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		logger.Info("DB", "Applied migration v1 (sector graph)")
	}

	if version < 2 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS characters (
				character_id   TEXT PRIMARY KEY,
				corporation_id TEXT NOT NULL DEFAULT '',
				current_sector INTEGER,
				updated_at     TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_characters_corp ON characters(corporation_id);

			CREATE TABLE IF NOT EXISTS map_knowledge (
				scope_kind TEXT NOT NULL,
				scope_id   TEXT NOT NULL,
				version    INTEGER NOT NULL,
				encoding   TEXT NOT NULL DEFAULT 'json',
				blob       BLOB NOT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (scope_kind, scope_id)
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (2);
		`)
		if err != nil {
			return fmt.Errorf("migration v2: %w", err)
		}
		logger.Info("DB", "Applied migration v2 (characters, map knowledge)")
	}

	return nil
}

// placeholders returns "?,?,...,?" with n marks.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, 2*n-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}

// chunkSize bounds IN (...) lists below SQLite's variable limit.
const chunkSize = 500

func chunks(ids []int) [][]int {
	var out [][]int
	for len(ids) > chunkSize {
		out = append(out, ids[:chunkSize])
		ids = ids[chunkSize:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func intArgs(ids []int) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
