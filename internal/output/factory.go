// internal/output/factory.go
package output

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/valpere/MediaScrapexter/internal/config"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

var fileExtensions = map[string]string{
	config.FormatJSON:   ".json",
	config.FormatJSONL:  ".jsonl",
	config.FormatCSV:    ".csv",
	config.FormatExcel:  ".xlsx",
	config.FormatSQLite: ".db",
}

// Open builds the saver for cfg.Format. When that backend cannot be opened
// it logs a warning and opens cfg.Fallback instead.
func Open(ctx context.Context, cfg config.OutputConfig, logger utils.Logger) (Saver, error) {
	if logger == nil {
		logger = utils.NewComponentLogger("output")
	}

	saver, err := openFormat(ctx, cfg, logger)
	if err == nil {
		return saver, nil
	}

	fallback := cfg.Fallback
	if fallback == "" {
		fallback = config.FormatCSV
	}
	if fallback == cfg.Format {
		return nil, err
	}

	logger.Warnf("output %s unavailable (%v), falling back to %s", cfg.Format, err, fallback)
	fb := cfg
	fb.Format = fallback
	fb.Path = PathForFormat(cfg.Path, fallback)

	saver, fbErr := openFormat(ctx, fb, logger)
	if fbErr != nil {
		return nil, fmt.Errorf("output %s failed: %v; fallback %s failed: %w", cfg.Format, err, fallback, fbErr)
	}
	return saver, nil
}

func openFormat(ctx context.Context, cfg config.OutputConfig, logger utils.Logger) (Saver, error) {
	switch strings.ToLower(cfg.Format) {
	case config.FormatJSON:
		return NewJSONSaver(cfg.Path, cfg.Pretty)
	case config.FormatJSONL:
		return NewJSONLinesSaver(cfg.Path)
	case config.FormatCSV:
		return NewCSVSaver(cfg.Path)
	case config.FormatExcel:
		return NewExcelSaver(cfg.Path)
	case config.FormatSQLite:
		return NewSQLiteSaver(ctx, cfg.Path, cfg.Table, logger)
	case config.FormatPostgreSQL:
		return NewPostgreSQLSaver(ctx, cfg.DSN, cfg.Table, logger)
	case config.FormatMySQL:
		return NewMySQLSaver(ctx, cfg.DSN, cfg.Table, logger)
	case config.FormatMongoDB:
		return NewMongoDBSaver(ctx, cfg.DSN, cfg.Database, cfg.Table, logger)
	default:
		return nil, fmt.Errorf("unsupported output format: %s", cfg.Format)
	}
}

// PathForFormat swaps the extension of path for the one format writes, or
// picks output<ext> when path is empty.
func PathForFormat(path, format string) string {
	ext := fileExtensions[format]
	if path == "" {
		return "output" + ext
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// Backend names the format a saver writes, for metrics and logs.
func Backend(s Saver) string {
	switch v := s.(type) {
	case *JSONSaver:
		return config.FormatJSON
	case *StreamSaver:
		return config.FormatJSONL
	case *CSVSaver:
		return config.FormatCSV
	case *ExcelSaver:
		return config.FormatExcel
	case *MongoDBSaver:
		return config.FormatMongoDB
	case *SQLSaver:
		return v.dialect.name
	}
	return "custom"
}
