// internal/output/types.go

// Package output persists page records through pluggable backends.
package output

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/valpere/MediaScrapexter/internal/media"
)

// Record is the persisted result for one page.
type Record struct {
	ID         string                 `json:"id" bson:"_id"`
	URL        string                 `json:"url" bson:"url"`
	FinalURL   string                 `json:"final_url,omitempty" bson:"final_url,omitempty"`
	Title      string                 `json:"title" bson:"title"`
	StatusCode int                    `json:"status_code" bson:"status_code"`
	TextLength int                    `json:"text_length" bson:"text_length"`
	Fields     map[string]interface{} `json:"fields,omitempty" bson:"fields,omitempty"`
	Media      []media.Descriptor     `json:"media" bson:"media"`
	MediaStats media.Stats            `json:"media_stats" bson:"media_stats"`
	Summary    string                 `json:"summary,omitempty" bson:"summary,omitempty"`
	Error      string                 `json:"error,omitempty" bson:"error,omitempty"`
	ScrapedAt  time.Time              `json:"scraped_at" bson:"scraped_at"`
}

// NewRecord starts a record for url with a fresh id.
func NewRecord(url string) Record {
	return Record{
		ID:        uuid.NewString(),
		URL:       url,
		ScrapedAt: time.Now().UTC(),
		Media:     []media.Descriptor{},
	}
}

// SetMedia copies the batch descriptors and counters into the record.
func (r *Record) SetMedia(b *media.Batch) {
	if b == nil {
		return
	}
	r.Media = b.All()
	r.MediaStats = b.Stats
	r.Summary = b.Summary()
}

// StoredBytes sums the sizes of stored media.
func (r Record) StoredBytes() int64 {
	var total int64
	for _, d := range r.Media {
		total += d.SizeBytes
	}
	return total
}

// mediaLocations joins the local paths, or the URL for embeds, of one category.
func (r Record) mediaLocations(c media.Category) string {
	var locs []string
	for _, d := range r.Media {
		if d.Category != c {
			continue
		}
		if d.LocalPath != "" {
			locs = append(locs, d.LocalPath)
		} else {
			locs = append(locs, d.AbsoluteURL)
		}
	}
	return strings.Join(locs, "|")
}

// Saver persists records.
type Saver interface {
	Save(ctx context.Context, records []Record) error
	Close() error
}
