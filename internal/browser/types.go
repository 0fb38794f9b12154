// internal/browser/types.go

// Package browser renders pages in headless Chrome for sites that build
// their markup with JavaScript.
package browser

import (
	"context"
	"time"

	"github.com/valpere/MediaScrapexter/internal/config"
)

// Options defines browser automation configuration
type Options struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	WaitSelector   string
	WaitDelay      time.Duration
	UserAgent      string
	ExecPath       string
	DisableImages  bool

	// VerifyTLS false makes Chrome ignore certificate errors
	VerifyTLS bool
	Proxy     string

	// PoolSize bounds the number of tabs rendering at once
	PoolSize int
}

// DefaultOptions returns default browser configuration
func DefaultOptions() Options {
	return Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		VerifyTLS:      true,
		PoolSize:       4,
	}
}

// OptionsFromConfig maps scraper settings onto browser options.
func OptionsFromConfig(cfg config.ScraperConfig) Options {
	opts := DefaultOptions()
	b := cfg.Browser

	opts.Headless = b.IsHeadless()
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}
	if b.ViewportWidth > 0 {
		opts.ViewportWidth = b.ViewportWidth
	}
	if b.ViewportHeight > 0 {
		opts.ViewportHeight = b.ViewportHeight
	}
	opts.WaitSelector = b.WaitSelector
	opts.WaitDelay = b.WaitDelay
	opts.UserAgent = b.UserAgent
	if opts.UserAgent == "" && len(cfg.UserAgents) > 0 {
		opts.UserAgent = cfg.UserAgents[0]
	}
	opts.ExecPath = b.ExecPath
	opts.DisableImages = b.DisableImages
	opts.VerifyTLS = cfg.TLSVerify()
	opts.Proxy = cfg.Proxy
	return opts
}

// Rendered is the DOM of a page after scripts ran.
type Rendered struct {
	HTML     string
	FinalURL string
}

// Session renders one page at a time. A Chrome tab is the production
// implementation.
type Session interface {
	Render(ctx context.Context, url string) (*Rendered, error)
	Close() error
}

// Stats contains browser automation statistics
type Stats struct {
	PagesLoaded     int64         `json:"pages_loaded"`
	AverageLoadTime time.Duration `json:"average_load_time"`
	Errors          int64         `json:"errors"`
}
