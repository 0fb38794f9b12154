// internal/scraper/http_fetcher.go
package scraper

import (
	"context"
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/valpere/MediaScrapexter/internal/config"
	"github.com/valpere/MediaScrapexter/internal/proxy"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

// MaxPageBytes bounds how much of a page body is read.
const MaxPageBytes int64 = 20 * 1024 * 1024

var metaCharsetPattern = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?\s*([a-zA-Z0-9_\-:]+)`)

// HTTPFetcher is the plain HTTP page strategy.
type HTTPFetcher struct {
	client   *HTTPClient
	logger   utils.Logger
	maxBytes int64
}

// NewHTTPFetcher wraps an HTTPClient as a PageFetcher.
func NewHTTPFetcher(client *HTTPClient, logger utils.Logger) *HTTPFetcher {
	if logger == nil {
		logger = utils.NewComponentLogger("http-fetcher")
	}
	return &HTTPFetcher{client: client, logger: logger, maxBytes: MaxPageBytes}
}

// NewHTTPFetcherFromConfig builds the HTTP strategy from scraper settings.
func NewHTTPFetcherFromConfig(cfg config.ScraperConfig, logger utils.Logger) (PageFetcher, error) {
	if logger == nil {
		logger = utils.NewComponentLogger("http-fetcher")
	}
	var pool *proxy.Pool
	if len(cfg.ProxyPool.URLs) > 0 {
		var err error
		pool, err = proxy.NewPool(proxy.Config{
			URLs:             cfg.ProxyPool.URLs,
			Rotation:         proxy.RotationStrategy(cfg.ProxyPool.Rotation),
			FailureThreshold: cfg.ProxyPool.FailureThreshold,
			RecoveryTime:     cfg.ProxyPool.RecoveryTime,
		}, logger.WithField("component", "proxy"))
		if err != nil {
			return nil, err
		}
	}
	client, err := NewHTTPClient(ClientConfig{
		Timeout:       cfg.Timeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
		UserAgents:    cfg.UserAgents,
		Headers:       cfg.Headers,
		Cookies:       cfg.Cookies,
		Delay:         cfg.Delay,
		Proxy:         cfg.Proxy,
		Proxies:       pool,
		Logger:        logger,

		InsecureSkipVerify: !cfg.TLSVerify(),
	})
	if err != nil {
		return nil, err
	}
	return NewHTTPFetcher(client, logger), nil
}

// Fetch downloads url and decodes the body to UTF-8.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	start := time.Now()

	resp, err := f.client.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Attempts: 1, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > f.maxBytes {
		body = body[:f.maxBytes]
		f.logger.WithField("url", url).Warnf("page body truncated at %d bytes", f.maxBytes)
	}
	if len(body) == 0 {
		return nil, &FetchError{URL: url, Err: ErrEmptyPage}
	}

	contentType := resp.Header.Get("Content-Type")
	html, err := DecodeHTML(body, contentType)
	if err != nil {
		f.logger.WithField("url", url).Warnf("charset decoding failed, using raw bytes: %v", err)
		html = string(body)
	}

	return &Page{
		URL:         url,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		HTML:        html,
		FetchedAt:   start,
		Duration:    time.Since(start),
	}, nil
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() error {
	f.client.Close()
	return nil
}

// DecodeHTML converts body to UTF-8 using the charset from the Content-Type
// header, or from a <meta> tag near the top of the document.
func DecodeHTML(body []byte, contentType string) (string, error) {
	name := charsetFromContentType(contentType)
	if name == "" {
		head := body
		if len(head) > 2048 {
			head = head[:2048]
		}
		if m := metaCharsetPattern.FindSubmatch(head); m != nil {
			name = string(m[1])
		}
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		return string(body), nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return "", fmt.Errorf("unknown charset %q: %w", name, err)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(decoded), nil
}

func charsetFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
