// internal/output/postgresql.go
package output

import (
	"context"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/valpere/MediaScrapexter/internal/utils"
)

var postgresDialect = sqlDialect{
	name:        "postgresql",
	driver:      "postgres",
	timeType:    "TIMESTAMPTZ",
	jsonType:    "JSONB",
	insert:      "INSERT INTO",
	onConflict:  "ON CONFLICT DO NOTHING",
	placeholder: dollarN,
}

// NewPostgreSQLSaver connects with a lib/pq connection string.
func NewPostgreSQLSaver(ctx context.Context, dsn, table string, logger utils.Logger) (*SQLSaver, error) {
	return openSQLSaver(ctx, postgresDialect, dsn, table, logger)
}
