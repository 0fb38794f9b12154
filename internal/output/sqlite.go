// internal/output/sqlite.go
package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/valpere/MediaScrapexter/internal/utils"
)

var sqliteDialect = sqlDialect{
	name:        "sqlite",
	driver:      "sqlite3",
	timeType:    "DATETIME",
	jsonType:    "TEXT",
	insert:      "INSERT OR IGNORE INTO",
	placeholder: questionMarks,
}

// NewSQLiteSaver opens or creates the database file at path.
func NewSQLiteSaver(ctx context.Context, path, table string, logger utils.Logger) (*SQLSaver, error) {
	if path == "" {
		return nil, fmt.Errorf("SQLite database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	s, err := openSQLSaver(ctx, sqliteDialect, path+"?_busy_timeout=5000&_journal_mode=WAL", table, logger)
	if err != nil {
		return nil, err
	}
	// SQLite works best with a single writer
	s.db.SetMaxOpenConns(1)
	s.db.SetMaxIdleConns(1)
	s.db.SetConnMaxLifetime(0)
	return s, nil
}
