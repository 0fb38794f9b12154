// internal/browser/fetcher.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/valpere/MediaScrapexter/internal/config"
	"github.com/valpere/MediaScrapexter/internal/scraper"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

// Fetcher renders pages in Chrome tabs and serves them as scraper pages.
type Fetcher struct {
	pool    *Pool
	closeFn func() error
	logger  utils.Logger

	mu    sync.Mutex
	timer loadTimer
}

// NewFetcher launches Chrome and returns a pooled fetcher.
func NewFetcher(opts Options, logger utils.Logger) (*Fetcher, error) {
	chrome, err := NewChrome(opts)
	if err != nil {
		return nil, err
	}
	return newFetcher(NewPool(chrome.NewTab, opts.PoolSize), chrome.Close, logger), nil
}

func newFetcher(pool *Pool, closeFn func() error, logger utils.Logger) *Fetcher {
	if logger == nil {
		logger = utils.NewComponentLogger("browser")
	}
	return &Fetcher{pool: pool, closeFn: closeFn, logger: logger}
}

// Factory builds the browser strategy for the scraper registry.
func Factory(cfg config.ScraperConfig, logger utils.Logger) (scraper.PageFetcher, error) {
	return NewFetcher(OptionsFromConfig(cfg), logger)
}

// Fetch renders url and returns the resulting DOM.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*scraper.Page, error) {
	start := time.Now()

	session, err := f.pool.Get(ctx)
	if err != nil {
		return nil, &scraper.FetchError{URL: url, Err: err}
	}

	rendered, err := session.Render(ctx, url)
	elapsed := time.Since(start)
	f.observe(elapsed, err)
	if err != nil {
		f.pool.Discard(session)
		return nil, &scraper.FetchError{URL: url, Attempts: 1, Err: err}
	}
	f.pool.Put(session)

	if rendered.HTML == "" {
		return nil, &scraper.FetchError{URL: url, Attempts: 1, Err: scraper.ErrEmptyPage}
	}

	f.logger.WithFields(map[string]interface{}{
		"url":      url,
		"duration": elapsed,
	}).Debug("page rendered")

	return &scraper.Page{
		URL:      url,
		FinalURL: rendered.FinalURL,
		// The DevTools render does not surface the document status.
		StatusCode:  http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		HTML:        rendered.HTML,
		FetchedAt:   start,
		Duration:    elapsed,
	}, nil
}

func (f *Fetcher) observe(d time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timer.observe(d, err)
}

// Stats returns a snapshot of render statistics.
func (f *Fetcher) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timer.stats
}

// Close closes the tabs and the browser process.
func (f *Fetcher) Close() error {
	var errs []error
	if err := f.pool.Close(); err != nil {
		errs = append(errs, err)
	}
	if f.closeFn != nil {
		if err := f.closeFn(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	return errors.Join(errs...)
}
