// internal/output/sql.go
package output

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/valpere/MediaScrapexter/internal/utils"
)

// sqlDialect captures what differs between the SQL backends.
type sqlDialect struct {
	name     string
	driver   string
	timeType string
	jsonType string

	// insert is the statement prefix; onConflict is appended after VALUES
	insert     string
	onConflict string

	placeholder func(n int) string
}

func questionMarks(int) string { return "?" }

func dollarN(n int) string { return fmt.Sprintf("$%d", n) }

var pageColumns = []string{
	"id", "url", "final_url", "title", "status_code", "text_length", "fields",
	"media_stored", "media_bytes", "summary", "error", "scraped_at",
}

var mediaColumns = []string{
	"page_id", "position", "media_type", "original_url", "absolute_url", "local_path",
	"filename", "size", "content_type", "width", "height", "is_data_url", "platform", "platform_id",
}

// SQLSaver writes pages to <table> and their media to <table>_media.
type SQLSaver struct {
	db      *sql.DB
	dialect sqlDialect
	table   string
	logger  utils.Logger
}

func openSQLSaver(ctx context.Context, d sqlDialect, dsn, table string, logger utils.Logger) (*SQLSaver, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s connection string is required", d.name)
	}
	if err := ValidateSQLIdentifier(table, d.name); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}
	if logger == nil {
		logger = utils.NewComponentLogger("output")
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", d.name, err)
	}

	s := &SQLSaver{db: db, dialect: d, table: table, logger: logger}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Infof("writing records to %s table %s", d.name, table)
	return s, nil
}

func (s *SQLSaver) createTables(ctx context.Context) error {
	d := s.dialect
	pages := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id VARCHAR(64) PRIMARY KEY,
	url TEXT NOT NULL,
	final_url TEXT,
	title TEXT,
	status_code INTEGER,
	text_length INTEGER,
	fields %s,
	media_stored INTEGER,
	media_bytes BIGINT,
	summary TEXT,
	error TEXT,
	scraped_at %s NOT NULL
)`, s.table, d.jsonType, d.timeType)

	mediaTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_media (
	page_id VARCHAR(64) NOT NULL,
	position INTEGER NOT NULL,
	media_type VARCHAR(16) NOT NULL,
	original_url TEXT,
	absolute_url TEXT,
	local_path TEXT,
	filename VARCHAR(255),
	size BIGINT,
	content_type VARCHAR(255),
	width INTEGER,
	height INTEGER,
	is_data_url BOOLEAN,
	platform VARCHAR(32),
	platform_id VARCHAR(255),
	PRIMARY KEY (page_id, position)
)`, s.table)

	for _, stmt := range []string{pages, mediaTable} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func (s *SQLSaver) insertStatement(table string, columns []string) string {
	marks := make([]string, len(columns))
	for i := range columns {
		marks[i] = s.dialect.placeholder(i + 1)
	}
	stmt := fmt.Sprintf("%s %s (%s) VALUES (%s)", s.dialect.insert, table,
		strings.Join(columns, ", "), strings.Join(marks, ", "))
	if s.dialect.onConflict != "" {
		stmt += " " + s.dialect.onConflict
	}
	return stmt
}

// Save inserts the records in one transaction. Records whose id already
// exists are left untouched.
func (s *SQLSaver) Save(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	pageStmt, err := tx.PrepareContext(ctx, s.insertStatement(s.table, pageColumns))
	if err != nil {
		return fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer pageStmt.Close()

	mediaStmt, err := tx.PrepareContext(ctx, s.insertStatement(s.table+"_media", mediaColumns))
	if err != nil {
		return fmt.Errorf("failed to prepare media insert: %w", err)
	}
	defer mediaStmt.Close()

	for _, r := range records {
		var fields interface{}
		if len(r.Fields) > 0 {
			b, err := json.Marshal(r.Fields)
			if err != nil {
				return fmt.Errorf("failed to encode fields of %s: %w", r.URL, err)
			}
			fields = string(b)
		}

		if _, err := pageStmt.ExecContext(ctx,
			r.ID, r.URL, r.FinalURL, r.Title, r.StatusCode, r.TextLength, fields,
			r.MediaStats.Stored, r.StoredBytes(), r.Summary, r.Error, r.ScrapedAt,
		); err != nil {
			return fmt.Errorf("failed to insert page %s: %w", r.URL, err)
		}

		for i, d := range r.Media {
			var width, height interface{}
			if d.Dimensions != nil {
				width, height = d.Dimensions.Width, d.Dimensions.Height
			}
			if _, err := mediaStmt.ExecContext(ctx,
				r.ID, i, string(d.Category), d.OriginalURL, d.AbsoluteURL, d.LocalPath,
				d.Filename, d.SizeBytes, d.ContentType, width, height, d.IsInline, d.Platform, d.PlatformID,
			); err != nil {
				return fmt.Errorf("failed to insert media of %s: %w", r.URL, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// DB exposes the connection for inspection.
func (s *SQLSaver) DB() *sql.DB {
	return s.db
}

// Close closes the connection pool.
func (s *SQLSaver) Close() error {
	return s.db.Close()
}
