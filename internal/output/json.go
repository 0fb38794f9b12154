// internal/output/json.go
package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/valpere/MediaScrapexter/internal/media"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

// jsonMedia shows sizes in human-readable form next to the byte count.
type jsonMedia struct {
	media.Descriptor
	Size      string `json:"size"`
	SizeBytes int64  `json:"size_bytes"`
}

type jsonRecord struct {
	Record
	Media []jsonMedia `json:"media"`
}

func toJSONRecord(r Record) jsonRecord {
	items := make([]jsonMedia, 0, len(r.Media))
	for _, d := range r.Media {
		items = append(items, jsonMedia{Descriptor: d, Size: utils.FormatBytes(d.SizeBytes), SizeBytes: d.SizeBytes})
	}
	return jsonRecord{Record: r, Media: items}
}

// JSONSaver keeps the output file a single JSON array. Entries already in
// the file are preserved.
type JSONSaver struct {
	path    string
	pretty  bool
	mu      sync.Mutex
	entries []json.RawMessage
}

// NewJSONSaver opens path, loading any array already stored there.
func NewJSONSaver(path string, pretty bool) (*JSONSaver, error) {
	if path == "" {
		return nil, fmt.Errorf("JSON output path is required")
	}
	s := &JSONSaver{path: path, pretty: pretty}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &s.entries); err != nil {
			return nil, fmt.Errorf("existing %s is not a JSON array: %w", path, err)
		}
	}
	return s, nil
}

// Save appends records and rewrites the file.
func (s *JSONSaver) Save(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		raw, err := json.Marshal(toJSONRecord(r))
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", r.ID, err)
		}
		s.entries = append(s.entries, raw)
	}
	return s.flush()
}

func (s *JSONSaver) flush() error {
	var (
		data []byte
		err  error
	)
	if s.pretty {
		data, err = json.MarshalIndent(s.entries, "", "  ")
	} else {
		data, err = json.Marshal(s.entries)
	}
	if err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return writeFileAtomic(s.path, append(data, '\n'))
}

// Close is a no-op; every Save is already on disk.
func (s *JSONSaver) Close() error {
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}

// StreamSaver writes one JSON object per record to a stream. It backs the
// jsonl format and the CLI's stdout output.
type StreamSaver struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

// NewStreamSaver writes to w. Pretty output indents each record, which is no
// longer valid JSON Lines.
func NewStreamSaver(w io.Writer, pretty bool) *StreamSaver {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return &StreamSaver{enc: enc}
}

// NewJSONLinesSaver appends records to path, one per line.
func NewJSONLinesSaver(path string) (*StreamSaver, error) {
	if path == "" {
		return nil, fmt.Errorf("JSON Lines output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	s := NewStreamSaver(f, false)
	s.closer = f
	return s, nil
}

// Save encodes records in order.
func (s *StreamSaver) Save(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if err := s.enc.Encode(toJSONRecord(r)); err != nil {
			return fmt.Errorf("failed to write record %s: %w", r.ID, err)
		}
	}
	return nil
}

// Close closes the underlying file, if the saver opened one.
func (s *StreamSaver) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
