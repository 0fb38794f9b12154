// internal/scraper/types.go

// Package scraper fetches pages through interchangeable strategies and pulls
// structured fields out of the returned markup.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Page is the result of fetching one URL.
type Page struct {
	URL         string                 `json:"url"`
	FinalURL    string                 `json:"final_url"`
	StatusCode  int                    `json:"status_code"`
	ContentType string                 `json:"content_type"`
	HTML        string                 `json:"-"`
	Title       string                 `json:"title"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
	FetchedAt   time.Time              `json:"fetched_at"`
	Duration    time.Duration          `json:"duration"`
}

// BaseURL returns the URL media references should be resolved against.
func (p *Page) BaseURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// PageFetcher retrieves raw page markup for a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
	Close() error
}

// ErrEmptyPage is returned when a page answers with an empty body.
var ErrEmptyPage = errors.New("empty response body")

// FetchError describes a failed page fetch.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d %s (after %d attempts)", e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure was transient.
func (e *FetchError) Retryable() bool {
	return shouldRetryStatusCode(e.StatusCode)
}
