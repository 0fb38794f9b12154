// internal/output/csv.go
package output

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/valpere/MediaScrapexter/internal/media"
)

// csvColumns is the fixed header. Selector fields are kept as one JSON
// column so the header never changes between pages.
var csvColumns = []string{
	"id", "url", "final_url", "title", "status_code", "text_length", "scraped_at",
	"images", "videos", "audio", "documents", "other",
	"media_stored", "media_bytes", "summary", "fields", "error",
}

// CSVSaver appends rows to a CSV file, writing the header when the file is new.
type CSVSaver struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVSaver opens path for appending.
func NewCSVSaver(path string) (*CSVSaver, error) {
	if path == "" {
		return nil, fmt.Errorf("CSV output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	s := &CSVSaver{file: file, writer: csv.NewWriter(file)}
	if info.Size() == 0 {
		if err := s.writer.Write(csvColumns); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		s.writer.Flush()
	}
	return s, nil
}

// Save writes one row per record.
func (s *CSVSaver) Save(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return fmt.Errorf("CSV saver is closed")
	}

	for _, r := range records {
		row, err := csvRow(r)
		if err != nil {
			return err
		}
		if err := s.writer.Write(row); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	s.writer.Flush()
	return s.writer.Error()
}

func csvRow(r Record) ([]string, error) {
	fields := ""
	if len(r.Fields) > 0 {
		b, err := json.Marshal(r.Fields)
		if err != nil {
			return nil, fmt.Errorf("failed to encode fields of %s: %w", r.URL, err)
		}
		fields = string(b)
	}
	return []string{
		r.ID,
		r.URL,
		r.FinalURL,
		r.Title,
		strconv.Itoa(r.StatusCode),
		strconv.Itoa(r.TextLength),
		r.ScrapedAt.Format(time.RFC3339),
		r.mediaLocations(media.CategoryImages),
		r.mediaLocations(media.CategoryVideos),
		r.mediaLocations(media.CategoryAudio),
		r.mediaLocations(media.CategoryDocuments),
		r.mediaLocations(media.CategoryOther),
		strconv.Itoa(r.MediaStats.Stored),
		strconv.FormatInt(r.StoredBytes(), 10),
		r.Summary,
		fields,
		r.Error,
	}, nil
}

// Close flushes and closes the file.
func (s *CSVSaver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer != nil {
		s.writer.Flush()
		s.writer = nil
	}
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}
