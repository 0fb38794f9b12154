// internal/scraper/registry.go
package scraper

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/valpere/MediaScrapexter/internal/config"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

// Factory builds a PageFetcher for one fetch mode.
type Factory func(cfg config.ScraperConfig, logger utils.Logger) (PageFetcher, error)

// Registry maps mode names to fetcher factories. Unknown modes fall back to
// the http strategy.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    utils.Logger
}

// NewRegistry returns a registry with the http strategy registered.
func NewRegistry(logger utils.Logger) *Registry {
	if logger == nil {
		logger = utils.NewComponentLogger("scraper")
	}
	r := &Registry{factories: make(map[string]Factory), logger: logger}
	r.Register(config.ModeHTTP, NewHTTPFetcherFromConfig)
	return r
}

// Register adds or replaces the factory for mode.
func (r *Registry) Register(mode string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(mode)] = factory
}

// Modes lists registered modes.
func (r *Registry) Modes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modes := make([]string, 0, len(r.factories))
	for m := range r.factories {
		modes = append(modes, m)
	}
	sort.Strings(modes)
	return modes
}

// NewFetcher builds the fetcher for cfg.Mode. An unknown mode, or a mode
// whose factory fails, falls back to http with a warning.
func (r *Registry) NewFetcher(cfg config.ScraperConfig) (PageFetcher, error) {
	mode := strings.ToLower(cfg.Mode)
	if mode == "" {
		mode = config.ModeHTTP
	}

	r.mu.RLock()
	factory, ok := r.factories[mode]
	fallback := r.factories[config.ModeHTTP]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warnf("mode %s not supported, falling back to %s mode", cfg.Mode, config.ModeHTTP)
		return fallback(cfg, r.logger.WithField("mode", config.ModeHTTP))
	}

	fetcher, err := factory(cfg, r.logger.WithField("mode", mode))
	if err == nil {
		return fetcher, nil
	}
	if mode == config.ModeHTTP {
		return nil, fmt.Errorf("failed to create %s fetcher: %w", mode, err)
	}
	r.logger.Warnf("failed to start %s mode (%v), falling back to %s mode", mode, err, config.ModeHTTP)
	return fallback(cfg, r.logger.WithField("mode", config.ModeHTTP))
}
