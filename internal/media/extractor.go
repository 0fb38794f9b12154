// internal/media/extractor.go
package media

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/valpere/MediaScrapexter/internal/utils"
)

// ReferenceScanner finds references in markup.
type ReferenceScanner interface {
	Scan(markup string) []Reference
}

// TargetResolver resolves a reference against its page URL.
type TargetResolver interface {
	Resolve(ref Reference, pageURL string) (Target, error)
}

// MediaClassifier picks a category and extension.
type MediaClassifier interface {
	Classify(urlOrFilename, contentType string) (Category, string, bool)
}

// Outcome is the terminal state of one reference.
type Outcome string

const (
	OutcomeStored         Outcome = "stored"
	OutcomeEmbed          Outcome = "embed"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeUnclassifiable Outcome = "unclassifiable"
	OutcomeDropped        Outcome = "dropped"
	OutcomeStoreFailed    Outcome = "store_failed"
)

// Recorder receives per-reference outcomes, typically for metrics.
type Recorder interface {
	RecordReference(kind TagKind, outcome Outcome)
	RecordStored(category Category, bytes int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordReference(TagKind, Outcome) {}
func (nopRecorder) RecordStored(Category, int64)     {}

// ExtractorConfig holds the settings the orchestrator builds its default
// components from.
type ExtractorConfig struct {
	MediaRoot     string
	DownloadMedia bool
	Fetch         FetcherConfig
	Extensions    ExtensionTable
}

// Option overrides a component of the extractor.
type Option func(*Extractor)

func WithScanner(s ReferenceScanner) Option   { return func(e *Extractor) { e.scanner = s } }
func WithResolver(r TargetResolver) Option    { return func(e *Extractor) { e.resolver = r } }
func WithClassifier(c MediaClassifier) Option { return func(e *Extractor) { e.classifier = c } }
func WithFetcher(f Fetcher) Option            { return func(e *Extractor) { e.fetcher = f } }
func WithStorer(s Storer) Option              { return func(e *Extractor) { e.store = s } }
func WithRecorder(r Recorder) Option          { return func(e *Extractor) { e.recorder = r } }
func WithLogger(l utils.Logger) Option        { return func(e *Extractor) { e.logger = l } }

// Extractor drives scan, resolve, classify, fetch, address and store for every
// reference on a page. A failure on one reference never affects the others.
type Extractor struct {
	config     ExtractorConfig
	scanner    ReferenceScanner
	resolver   TargetResolver
	classifier MediaClassifier
	fetcher    Fetcher
	store      Storer
	recorder   Recorder
	logger     utils.Logger
}

// NewExtractor creates an extractor from config, with options applied on top
// of the defaults.
func NewExtractor(config ExtractorConfig, opts ...Option) *Extractor {
	e := &Extractor{config: config}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = utils.NewComponentLogger("media")
	}
	if e.scanner == nil {
		// Anchors follow the configured media types.
		e.scanner = NewScannerWithLinkPattern(LinkPattern(config.Extensions))
	}
	if e.resolver == nil {
		e.resolver = NewResolver()
	}
	if e.classifier == nil {
		e.classifier = NewClassifier(config.Extensions)
	}
	if e.fetcher == nil {
		e.fetcher = NewBoundedFetcher(config.Fetch, nil)
	}
	if e.store == nil {
		e.store = NewStore(config.MediaRoot, e.logger.WithField("component", "media-store"))
	}
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	return e
}

// ExtractMedia processes every reference in markup and returns the batch. The
// only error is ErrScanFailed when the scan itself faults.
func (e *Extractor) ExtractMedia(ctx context.Context, markup, pageURL string) (*Batch, error) {
	refs, err := e.scan(markup)
	if err != nil {
		return nil, err
	}

	batch := NewBatch()
	batch.Stats.Discovered = len(refs)
	logger := e.logger.WithField("page", pageURL)
	logger.Debugf("found %d media references", len(refs))

	if e.config.DownloadMedia && len(refs) > 0 {
		if err := e.store.EnsureLayout(); err != nil {
			logger.Warnf("media layout: %v", err)
		}
	}

	for _, ref := range refs {
		if ctx.Err() != nil {
			e.finish(batch, ref, OutcomeDropped)
			continue
		}
		outcome := e.process(ctx, batch, ref, pageURL, logger)
		e.finish(batch, ref, outcome)
	}

	logger.Infof("media extraction: %s", batch.Summary())
	return batch, nil
}

func (e *Extractor) scan(markup string) (refs []Reference, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithField("stack", string(debug.Stack())).Errorf("scanner panic: %v", r)
			refs, err = nil, fmt.Errorf("%w: %v", ErrScanFailed, r)
		}
	}()
	return e.scanner.Scan(markup), nil
}

func (e *Extractor) finish(batch *Batch, ref Reference, outcome Outcome) {
	switch outcome {
	case OutcomeStored:
		batch.Stats.Stored++
	case OutcomeEmbed:
		batch.Stats.Embeds++
	case OutcomeSkipped:
		batch.Stats.Skipped++
	case OutcomeUnclassifiable:
		batch.Stats.Unclassifiable++
	case OutcomeStoreFailed:
		batch.Stats.StoreFailures++
	default:
		batch.Stats.Dropped++
	}
	e.recorder.RecordReference(ref.Kind, outcome)
}

// process runs one reference through the pipeline. Panics in any component
// are contained here so the batch keeps going.
func (e *Extractor) process(ctx context.Context, batch *Batch, ref Reference, pageURL string, logger utils.Logger) (outcome Outcome) {
	refLogger := logger.WithFields(map[string]interface{}{
		"reference": displayValue(ref.RawValue),
		"tag":       ref.Kind.String(),
	})
	defer func() {
		if r := recover(); r != nil {
			refLogger.Errorf("media item panic: %v", r)
			outcome = OutcomeDropped
		}
	}()

	target, err := e.resolver.Resolve(ref, pageURL)
	if err == nil {
		err = target.Validate()
	}
	if err != nil {
		refLogger.Warnf("dropped: %v", err)
		return OutcomeDropped
	}

	if target.IsPlatformEmbed() {
		batch.Add(Descriptor{
			Category:        PlatformCategory(target.Platform),
			OriginalURL:     ref.RawValue,
			AbsoluteURL:     target.AbsoluteURL,
			IsPlatformEmbed: true,
			Platform:        target.Platform,
			PlatformID:      target.PlatformID,
		})
		return OutcomeEmbed
	}

	if !e.config.DownloadMedia {
		return OutcomeSkipped
	}

	category, ext, ok := e.classifyTarget(target, "")
	if !ok && !contentTypeMayDecide(target) {
		refLogger.Debug("unclassifiable, not fetched")
		return OutcomeUnclassifiable
	}

	payload, err := e.fetcher.Fetch(ctx, target)
	if err != nil {
		refLogger.Warnf("dropped: %v", err)
		return OutcomeDropped
	}

	if !ok {
		category, ext, ok = e.classifyTarget(target, payload.ContentType)
		if !ok {
			refLogger.WithField("content_type", payload.ContentType).Debug("unclassifiable")
			return OutcomeUnclassifiable
		}
	}

	desc, err := e.store.Store(category, payload.Data, ext)
	if err != nil {
		if errors.Is(err, ErrIO) {
			refLogger.Errorf("store failed: %v", err)
			return OutcomeStoreFailed
		}
		refLogger.Warnf("dropped: %v", err)
		return OutcomeDropped
	}

	desc.OriginalURL = ref.RawValue
	desc.AbsoluteURL = target.AbsoluteURL
	desc.ContentType = payload.ContentType
	desc.IsInline = target.IsInline()
	batch.Add(desc)
	e.recorder.RecordStored(desc.Category, desc.SizeBytes)
	refLogger.WithField("path", desc.LocalPath).Debug("stored")
	return OutcomeStored
}

func (e *Extractor) classifyTarget(target Target, contentType string) (Category, string, bool) {
	if target.IsInline() {
		return e.classifier.Classify("", target.Inline.MIMEType)
	}
	return e.classifier.Classify(target.AbsoluteURL, contentType)
}

// contentTypeMayDecide reports whether a target the URL could not classify is
// still worth fetching for its content type. Media tags often point at
// endpoints such as /thumb.php?id=3; iframes without a known extension are
// pages.
func contentTypeMayDecide(target Target) bool {
	if target.IsInline() {
		return false
	}
	switch target.Original.Kind {
	case TagImage, TagVideo, TagAudio:
		return true
	default:
		return false
	}
}

func displayValue(raw string) string {
	if hasDataScheme(raw) {
		return utils.TruncateString(raw, 64)
	}
	return raw
}
