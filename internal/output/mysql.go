// internal/output/mysql.go
package output

import (
	"context"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/valpere/MediaScrapexter/internal/utils"
)

var mysqlDialect = sqlDialect{
	name:        "mysql",
	driver:      "mysql",
	timeType:    "DATETIME(6)",
	jsonType:    "JSON",
	insert:      "INSERT IGNORE INTO",
	placeholder: questionMarks,
}

// NewMySQLSaver connects with a go-sql-driver DSN. parseTime is forced on
// so timestamps round-trip as time.Time.
func NewMySQLSaver(ctx context.Context, dsn, table string, logger utils.Logger) (*SQLSaver, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	return openSQLSaver(ctx, mysqlDialect, cfg.FormatDSN(), table, logger)
}
