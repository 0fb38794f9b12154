// internal/pipeline/pipeline.go

// Package pipeline drives pages through fetch, field extraction, media
// extraction and persistence.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/valpere/MediaScrapexter/internal/browser"
	"github.com/valpere/MediaScrapexter/internal/config"
	apperrors "github.com/valpere/MediaScrapexter/internal/errors"
	"github.com/valpere/MediaScrapexter/internal/media"
	"github.com/valpere/MediaScrapexter/internal/monitoring"
	"github.com/valpere/MediaScrapexter/internal/output"
	"github.com/valpere/MediaScrapexter/internal/scraper"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

// MediaExtractor pulls media out of page markup.
type MediaExtractor interface {
	ExtractMedia(ctx context.Context, markup, pageURL string) (*media.Batch, error)
}

// Config controls a pipeline run.
type Config struct {
	// Concurrency is the number of pages in flight
	Concurrency int

	// BatchSize is the number of records buffered before a save
	BatchSize int

	// Mode labels page metrics (http, browser)
	Mode string
}

// Metrics tracks pipeline performance across runs.
type Metrics struct {
	ProcessedCount  int64         `json:"processed_count"`
	SuccessCount    int64         `json:"success_count"`
	ErrorCount      int64         `json:"error_count"`
	MediaStored     int64         `json:"media_stored"`
	MediaBytes      int64         `json:"media_bytes"`
	Embeds          int64         `json:"embeds"`
	RecordsSaved    int64         `json:"records_saved"`
	TotalTime       time.Duration `json:"total_time"`
	AverageTime     time.Duration `json:"average_time"`
	LastProcessedAt time.Time     `json:"last_processed_at"`
}

// Summary describes one Run.
type Summary struct {
	Pages        int           `json:"pages"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	MediaStored  int           `json:"media_stored"`
	MediaBytes   int64         `json:"media_bytes"`
	Embeds       int           `json:"embeds"`
	RecordsSaved int           `json:"records_saved"`
	Duration     time.Duration `json:"duration"`
}

func (s Summary) String() string {
	return fmt.Sprintf("%d/%d pages succeeded, %d media files stored (%s), %d embeds, %d records saved in %s",
		s.Succeeded, s.Pages, s.MediaStored, utils.FormatBytes(s.MediaBytes), s.Embeds, s.RecordsSaved,
		s.Duration.Round(time.Millisecond))
}

// Option overrides a dependency of the pipeline.
type Option func(*Pipeline)

// WithFieldExtractor sets the selector extractor.
func WithFieldExtractor(fe *scraper.FieldExtractor) Option {
	return func(p *Pipeline) { p.fields = fe }
}

// WithTransformer sets the field post-processor.
func WithTransformer(ft *FieldTransformer) Option {
	return func(p *Pipeline) { p.transformer = ft }
}

// WithMetrics reports pages and saves to m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.monitor = m }
}

// WithErrorService sets the failure policy.
func WithErrorService(s *apperrors.Service) Option {
	return func(p *Pipeline) { p.errors = s }
}

// WithLogger sets the logger.
func WithLogger(l utils.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline processes pages and saves one record per page.
type Pipeline struct {
	config      Config
	fetcher     scraper.PageFetcher
	media       MediaExtractor
	saver       output.Saver
	fields      *scraper.FieldExtractor
	transformer *FieldTransformer
	monitor     *monitoring.Metrics
	errors      *apperrors.Service
	logger      utils.Logger

	mu      sync.RWMutex
	metrics Metrics

	saveMu  sync.Mutex
	pending []output.Record
}

// New assembles a pipeline from its parts. The pipeline owns fetcher and
// saver and closes them in Close.
func New(cfg Config, fetcher scraper.PageFetcher, extractor MediaExtractor, saver output.Saver, opts ...Option) *Pipeline {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Mode == "" {
		cfg.Mode = config.ModeHTTP
	}

	p := &Pipeline{
		config:  cfg,
		fetcher: fetcher,
		media:   extractor,
		saver:   saver,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.fields == nil {
		p.fields = scraper.NewFieldExtractor(nil)
	}
	if p.errors == nil {
		p.errors = apperrors.NewService()
	}
	if p.logger == nil {
		p.logger = utils.NewComponentLogger("pipeline")
	}
	return p
}

// NewFromConfig builds every component a configuration describes: the fetch
// strategy for scraper.mode, the media extractor for storage and the saver
// for output.
func NewFromConfig(ctx context.Context, cfg *config.Config, metrics *monitoring.Metrics, logger utils.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = utils.NewComponentLogger("pipeline")
	}
	if _, err := NewFieldTransformer(cfg.Scraper.Transforms); err != nil {
		return nil, err
	}
	saver, err := output.Open(ctx, cfg.Output, logger.WithField("component", "output"))
	if err != nil {
		return nil, utils.NewError(utils.ErrCodeOutputFailed, "failed to open output").
			WithCause(err).
			WithContext("format", cfg.Output.Format).
			WithUserMessage(fmt.Sprintf("The %s output could not be opened.", cfg.Output.Format)).
			Build()
	}
	p, err := NewFromConfigWithSaver(cfg, saver, metrics, logger)
	if err != nil {
		saver.Close()
		return nil, err
	}
	return p, nil
}

// NewFromConfigWithSaver is NewFromConfig with the output section ignored in
// favor of saver.
func NewFromConfigWithSaver(cfg *config.Config, saver output.Saver, metrics *monitoring.Metrics, logger utils.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = utils.NewComponentLogger("pipeline")
	}

	extensions, err := cfg.ExtensionTable()
	if err != nil {
		return nil, err
	}
	transformer, err := NewFieldTransformer(cfg.Scraper.Transforms)
	if err != nil {
		return nil, err
	}

	registry := scraper.NewRegistry(logger.WithField("component", "scraper"))
	registry.Register(config.ModeBrowser, browser.Factory)
	fetcher, err := registry.NewFetcher(cfg.Scraper)
	if err != nil {
		return nil, fmt.Errorf("failed to create page fetcher: %w", err)
	}

	mediaOpts := []media.Option{media.WithLogger(logger.WithField("component", "media"))}
	if metrics != nil {
		mediaOpts = append(mediaOpts, media.WithRecorder(metrics))
	}
	extractor := media.NewExtractor(media.ExtractorConfig{
		MediaRoot:     cfg.Storage.MediaRoot,
		DownloadMedia: cfg.Storage.DownloadEnabled(),
		Fetch:         cfg.FetcherConfig(),
		Extensions:    extensions,
	}, mediaOpts...)

	errService := apperrors.NewService().WithPolicy(apperrors.FailurePolicy{
		Mode:         cfg.OnError.Mode,
		MaxErrorRate: cfg.OnError.MaxErrorRate,
		MinSample:    cfg.OnError.MinSample,
	})

	opts := []Option{
		WithFieldExtractor(scraper.NewFieldExtractor(cfg.Scraper.Selectors)),
		WithTransformer(transformer),
		WithErrorService(errService),
		WithLogger(logger),
	}
	if metrics != nil {
		opts = append(opts, WithMetrics(metrics))
	}

	mode := cfg.Scraper.Mode
	if mode != config.ModeBrowser {
		mode = config.ModeHTTP
	}
	return New(Config{
		Concurrency: cfg.Concurrency,
		BatchSize:   cfg.BatchSize,
		Mode:        mode,
	}, fetcher, extractor, saver, opts...), nil
}

// Run processes urls with up to Concurrency pages in flight. Failed pages are
// saved with their error; Run stops early only when the failure policy trips,
// the context ends or a save fails. Buffered records are flushed before
// returning in every case.
func (p *Pipeline) Run(ctx context.Context, urls []string) (*Summary, error) {
	start := time.Now()
	savedBefore := p.GetMetrics().RecordsSaved
	summary := &Summary{}
	var sumMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)

	p.logger.Infof("processing %d pages with concurrency %d", len(urls), p.config.Concurrency)

	for _, u := range urls {
		if gctx.Err() != nil {
			break
		}
		u := u
		g.Go(func() error {
			rec, err := p.ProcessPage(gctx, u)

			sumMu.Lock()
			summary.Pages++
			if err != nil {
				summary.Failed++
			} else {
				summary.Succeeded++
				summary.MediaStored += rec.MediaStats.Stored
				summary.MediaBytes += rec.StoredBytes()
				summary.Embeds += rec.MediaStats.Embeds
			}
			failed, total := summary.Failed, summary.Pages
			sumMu.Unlock()

			if err := p.enqueue(context.WithoutCancel(gctx), rec); err != nil {
				return err
			}
			return p.errors.CheckFailures(failed, total)
		})
	}

	runErr := g.Wait()

	// Flush even if ctx is done so partial results survive an interrupt.
	if err := p.Flush(context.WithoutCancel(ctx)); err != nil && runErr == nil {
		runErr = err
	}
	if runErr == nil {
		runErr = ctx.Err()
	}

	summary.Skipped = len(urls) - summary.Pages
	summary.RecordsSaved = int(p.GetMetrics().RecordsSaved - savedBefore)
	summary.Duration = time.Since(start)
	p.logger.Infof("run finished: %s", summary)
	return summary, runErr
}

// ProcessPage fetches url and builds its record. The record is always usable;
// on error its Error field carries the reason.
func (p *Pipeline) ProcessPage(ctx context.Context, url string) (output.Record, error) {
	return p.process(ctx, url, func() (*scraper.Page, error) {
		fetchStart := time.Now()
		page, err := p.fetcher.Fetch(ctx, url)
		if p.monitor != nil {
			p.monitor.ObservePage(p.config.Mode, time.Since(fetchStart), err)
		}
		return page, err
	})
}

// ProcessHTML builds a record from markup the caller already has. Relative
// references resolve against pageURL.
func (p *Pipeline) ProcessHTML(ctx context.Context, pageURL, html string) (output.Record, error) {
	return p.process(ctx, pageURL, func() (*scraper.Page, error) {
		if strings.TrimSpace(html) == "" {
			return nil, scraper.ErrEmptyPage
		}
		return &scraper.Page{URL: pageURL, FinalURL: pageURL, HTML: html, FetchedAt: time.Now()}, nil
	})
}

func (p *Pipeline) process(ctx context.Context, url string, load func() (*scraper.Page, error)) (output.Record, error) {
	start := time.Now()
	rec := output.NewRecord(url)
	logger := p.logger.WithField("url", url)

	if p.monitor != nil {
		p.monitor.PageStarted()
		defer p.monitor.PageDone()
	}

	page, err := load()
	if err == nil {
		err = p.processMarkup(ctx, &rec, page, logger)
	}
	if err != nil {
		rec.Error = err.Error()
		logger.Warnf("page failed: %v", err)
	}
	p.updateMetrics(rec, time.Since(start), err)
	return rec, err
}

func (p *Pipeline) processMarkup(ctx context.Context, rec *output.Record, page *scraper.Page, logger utils.Logger) error {
	rec.FinalURL = page.FinalURL
	rec.StatusCode = page.StatusCode
	rec.TextLength = scraper.TextLength(page.HTML)

	if err := p.fields.Enrich(page); err != nil {
		logger.Warnf("field extraction: %v", err)
	}
	rec.Title = page.Title
	rec.Fields = page.Fields
	if err := p.transformer.Apply(rec.Fields); err != nil {
		logger.Warnf("%v", err)
	}

	batch, err := p.media.ExtractMedia(ctx, page.HTML, page.BaseURL())
	if err != nil {
		return fmt.Errorf("media extraction: %w", err)
	}
	rec.SetMedia(batch)
	if batch.Degraded() {
		logger.Warnf("media extraction degraded: %s", batch.Summary())
	}
	return nil
}

func (p *Pipeline) enqueue(ctx context.Context, rec output.Record) error {
	p.saveMu.Lock()
	p.pending = append(p.pending, rec)
	full := len(p.pending) >= p.config.BatchSize
	p.saveMu.Unlock()

	if !full {
		return nil
	}
	return p.Flush(ctx)
}

// Flush saves buffered records.
func (p *Pipeline) Flush(ctx context.Context) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	if len(p.pending) == 0 {
		return nil
	}
	records := p.pending
	backend := output.Backend(p.saver)
	err := p.saver.Save(ctx, records)
	if p.monitor != nil {
		p.monitor.ObserveSave(backend, len(records), err)
	}
	if err != nil {
		return utils.NewError(utils.ErrCodeOutputFailed, fmt.Sprintf("failed to save %d records", len(records))).
			WithCause(err).
			WithContext("backend", backend).
			WithRetryable(true).
			Build()
	}
	p.pending = nil

	p.mu.Lock()
	p.metrics.RecordsSaved += int64(len(records))
	p.mu.Unlock()
	p.logger.Debugf("saved %d records", len(records))
	return nil
}

// GetMetrics returns current pipeline metrics
func (p *Pipeline) GetMetrics() Metrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metrics
}

func (p *Pipeline) updateMetrics(rec output.Record, d time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.ProcessedCount++
	p.metrics.LastProcessedAt = time.Now()
	p.metrics.TotalTime += d
	if err != nil {
		p.metrics.ErrorCount++
	} else {
		p.metrics.SuccessCount++
		p.metrics.MediaStored += int64(rec.MediaStats.Stored)
		p.metrics.MediaBytes += rec.StoredBytes()
		p.metrics.Embeds += int64(rec.MediaStats.Embeds)
	}
	p.metrics.AverageTime = p.metrics.TotalTime / time.Duration(p.metrics.ProcessedCount)
}

// Close flushes pending records and releases the fetcher and saver.
func (p *Pipeline) Close() error {
	flushErr := p.Flush(context.Background())
	fetchErr := p.fetcher.Close()
	saveErr := p.saver.Close()
	for _, err := range []error{flushErr, fetchErr, saveErr} {
		if err != nil {
			return err
		}
	}
	return nil
}
