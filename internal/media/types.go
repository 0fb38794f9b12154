// internal/media/types.go

// Package media discovers media references in page markup, downloads them
// with bounded memory, and stores them under a content-addressed layout.
package media

import (
	"fmt"
	"strings"
)

// Category is one of the fixed media classes a stored file is filed under.
type Category string

const (
	CategoryImages    Category = "images"
	CategoryVideos    Category = "videos"
	CategoryAudio     Category = "audio"
	CategoryDocuments Category = "documents"
	CategoryOther     Category = "other"
)

// Categories returns the closed set of categories in layout order.
func Categories() []Category {
	return []Category{CategoryImages, CategoryVideos, CategoryAudio, CategoryDocuments, CategoryOther}
}

// IsValid reports whether c belongs to the closed category set.
func (c Category) IsValid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory converts a config value into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("unknown media category %q", s)
	}
	return c, nil
}

// TagKind identifies the markup construct a reference was found in.
type TagKind int

const (
	TagImage TagKind = iota
	TagVideo
	TagAudio
	TagEmbeddedFrame
	TagAnchorLink
)

func (k TagKind) String() string {
	switch k {
	case TagImage:
		return "image"
	case TagVideo:
		return "video"
	case TagAudio:
		return "audio"
	case TagEmbeddedFrame:
		return "embedded_frame"
	case TagAnchorLink:
		return "anchor_link"
	default:
		return "unknown"
	}
}

// Reference is a pointer to a media asset exactly as it appeared in markup.
type Reference struct {
	RawValue string
	Kind     TagKind
}

// InlinePayload holds the decoded body of a data: URL.
type InlinePayload struct {
	Data     []byte
	MIMEType string
}

// Target is a reference resolved into something fetchable. Exactly one of
// AbsoluteURL and Inline is set.
type Target struct {
	AbsoluteURL string
	Inline      *InlinePayload
	Original    Reference

	// Platform is set for embedded frames pointing at a known hosting site;
	// such targets are recorded but never fetched here.
	Platform   string
	PlatformID string
}

// IsInline reports whether the target carries its own bytes.
func (t Target) IsInline() bool {
	return t.Inline != nil
}

// IsPlatformEmbed reports whether the target is deferred to a platform downloader.
func (t Target) IsPlatformEmbed() bool {
	return t.Platform != ""
}

// Validate checks the one-of invariant between AbsoluteURL and Inline.
func (t Target) Validate() error {
	if (t.AbsoluteURL == "") == (t.Inline == nil) {
		return fmt.Errorf("%w: target must carry exactly one of url or inline payload", ErrInvalidReference)
	}
	return nil
}

// Payload is the result of a successful fetch.
type Payload struct {
	Data        []byte
	ContentType string
}

// Dimensions holds pixel dimensions of a decoded image.
type Dimensions struct {
	Width  int `json:"width" bson:"width"`
	Height int `json:"height" bson:"height"`
}

// Descriptor is the record of one acquired media item. It is immutable once
// returned.
type Descriptor struct {
	Category    Category    `json:"media_type" bson:"media_type"`
	OriginalURL string      `json:"original_url" bson:"original_url"`
	AbsoluteURL string      `json:"absolute_url,omitempty" bson:"absolute_url,omitempty"`
	LocalPath   string      `json:"local_path,omitempty" bson:"local_path,omitempty"`
	Filename    string      `json:"filename,omitempty" bson:"filename,omitempty"`
	SizeBytes   int64       `json:"size" bson:"size"`
	ContentType string      `json:"content_type,omitempty" bson:"content_type,omitempty"`
	Dimensions  *Dimensions `json:"dimensions,omitempty" bson:"dimensions,omitempty"`
	IsInline    bool        `json:"is_data_url,omitempty" bson:"is_data_url,omitempty"`

	IsPlatformEmbed bool   `json:"is_platform_embed,omitempty" bson:"is_platform_embed,omitempty"`
	Platform        string `json:"platform,omitempty" bson:"platform,omitempty"`
	PlatformID      string `json:"platform_id,omitempty" bson:"platform_id,omitempty"`
}

// Stats counts what happened to the references of one page.
type Stats struct {
	Discovered     int `json:"discovered"`
	Stored         int `json:"stored"`
	Embeds         int `json:"embeds"`
	Skipped        int `json:"skipped"`
	Unclassifiable int `json:"unclassifiable"`
	Dropped        int `json:"dropped"`
	StoreFailures  int `json:"store_failures"`
}

// Batch is the per-page result: descriptors per category in discovery order.
type Batch struct {
	Items map[Category][]Descriptor `json:"items"`
	Stats Stats                     `json:"stats"`
}

// NewBatch returns an empty batch with one list per category.
func NewBatch() *Batch {
	items := make(map[Category][]Descriptor, len(Categories()))
	for _, c := range Categories() {
		items[c] = []Descriptor{}
	}
	return &Batch{Items: items}
}

// Add appends d to the list for its category.
func (b *Batch) Add(d Descriptor) {
	b.Items[d.Category] = append(b.Items[d.Category], d)
}

// Get returns the descriptors filed under c.
func (b *Batch) Get(c Category) []Descriptor {
	return b.Items[c]
}

// Len returns the number of descriptors across all categories.
func (b *Batch) Len() int {
	n := 0
	for _, list := range b.Items {
		n += len(list)
	}
	return n
}

// All returns every descriptor, grouped in category layout order.
func (b *Batch) All() []Descriptor {
	all := make([]Descriptor, 0, b.Len())
	for _, c := range Categories() {
		all = append(all, b.Items[c]...)
	}
	return all
}

// Degraded reports whether any store failed on a filesystem fault.
func (b *Batch) Degraded() bool {
	return b.Stats.StoreFailures > 0
}

// Summary renders the partial-success line reported to users.
func (b *Batch) Summary() string {
	s := fmt.Sprintf("%d of %d references yielded stored media", b.Stats.Stored, b.Stats.Discovered)
	if b.Stats.Embeds > 0 {
		s += fmt.Sprintf(", %d platform embeds recorded", b.Stats.Embeds)
	}
	if b.Stats.StoreFailures > 0 {
		s += fmt.Sprintf(", %d store failures", b.Stats.StoreFailures)
	}
	return s
}
