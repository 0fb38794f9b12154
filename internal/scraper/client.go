// internal/scraper/client.go
package scraper

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/valpere/MediaScrapexter/internal/proxy"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

// HTTPClient performs page requests with user agent rotation, pacing between
// requests and retry on transient statuses.
type HTTPClient struct {
	httpClient    *http.Client
	userAgents    []string
	currentUA     int
	uaMutex       sync.Mutex
	rateLimiter   *rate.Limiter
	delay         time.Duration
	retryAttempts int
	retryDelay    time.Duration
	headers       map[string]string
	cookies       map[string]string
	proxies       *proxy.Pool
	sleep         func(ctx context.Context, d time.Duration) error
	logger        utils.Logger
}

// ClientConfig defines configuration options for the HTTP client
type ClientConfig struct {
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	UserAgents    []string
	Headers       map[string]string
	Cookies       map[string]string

	// Delay is the pause between consecutive requests, jittered by ±20%
	Delay time.Duration

	Proxy string

	// InsecureSkipVerify disables certificate checks; the zero value verifies
	InsecureSkipVerify bool

	// Proxies rotates requests across a pool; it overrides Proxy
	Proxies *proxy.Pool

	// Transport replaces the default transport; tests inject httptest clients' transports
	Transport http.RoundTripper

	// Sleep waits between retries; nil uses a context-aware timer
	Sleep func(ctx context.Context, d time.Duration) error

	Logger utils.Logger
}

// NewHTTPClient creates a new HTTP client with the specified configuration
func NewHTTPClient(config ClientConfig) (*HTTPClient, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryAttempts < 0 {
		config.RetryAttempts = 0
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}
	if len(config.UserAgents) == 0 {
		config.UserAgents = getDefaultUserAgents()
	}
	if config.Sleep == nil {
		config.Sleep = sleepContext
	}
	if config.Logger == nil {
		config.Logger = utils.NewComponentLogger("http-client")
	}

	transport := config.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.MaxIdleConns = 100
		t.MaxIdleConnsPerHost = 10
		t.IdleConnTimeout = 90 * time.Second
		if config.InsecureSkipVerify {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit opt-out
		}
		switch {
		case config.Proxies != nil:
			t.Proxy = proxyFromContext
		case config.Proxy != "":
			proxyURL, err := proxy.ParseURL(config.Proxy)
			if err != nil {
				return nil, err
			}
			t.Proxy = http.ProxyURL(proxyURL)
		}
		transport = t
	}

	// No delay means no pacing.
	limit := rate.Inf
	if config.Delay > 0 {
		limit = rate.Every(config.Delay)
	}

	return &HTTPClient{
		httpClient:    &http.Client{Timeout: config.Timeout, Transport: transport},
		userAgents:    config.UserAgents,
		rateLimiter:   rate.NewLimiter(limit, 1),
		delay:         config.Delay,
		retryAttempts: config.RetryAttempts,
		retryDelay:    config.RetryDelay,
		headers:       config.Headers,
		cookies:       config.Cookies,
		proxies:       config.Proxies,
		sleep:         config.Sleep,
		logger:        config.Logger,
	}, nil
}

// Get performs an HTTP GET request with retry logic. The caller closes the body.
func (c *HTTPClient) Get(ctx context.Context, targetURL string) (*http.Response, error) {
	if _, err := url.ParseRequestURI(targetURL); err != nil {
		return nil, &FetchError{URL: targetURL, Err: fmt.Errorf("invalid URL: %w", err)}
	}

	var lastErr *FetchError
	totalAttempts := c.retryAttempts + 1
	wait := c.retryBackoff()

	for attempt := 0; attempt < totalAttempts; attempt++ {
		if err := c.pace(ctx); err != nil {
			return nil, &FetchError{URL: targetURL, Attempts: attempt, Err: err}
		}

		reqCtx, px, err := c.withProxy(ctx)
		if err != nil {
			return nil, &FetchError{URL: targetURL, Attempts: attempt, Err: err}
		}
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, targetURL, nil)
		if err != nil {
			return nil, &FetchError{URL: targetURL, Err: fmt.Errorf("failed to create request: %w", err)}
		}
		c.setRequestHeaders(req)

		resp, err := c.httpClient.Do(req)
		c.reportProxy(ctx, px, resp, err)
		if err != nil {
			lastErr = &FetchError{URL: targetURL, Attempts: attempt + 1, Err: err}
			if ctx.Err() != nil {
				return nil, lastErr
			}
		} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		} else {
			resp.Body.Close()
			lastErr = &FetchError{
				URL:        targetURL,
				StatusCode: resp.StatusCode,
				Attempts:   attempt + 1,
				Err:        fmt.Errorf("HTTP %s", resp.Status),
			}
			// A pooled proxy that rejects us is worth retrying through the next one.
			proxyRejected := px != nil && resp.StatusCode == http.StatusProxyAuthRequired
			if !shouldRetryStatusCode(resp.StatusCode) && !proxyRejected {
				return nil, lastErr
			}
		}

		if attempt < totalAttempts-1 {
			c.logger.WithField("url", targetURL).Debugf("attempt %d/%d failed: %v", attempt+1, totalAttempts, lastErr.Err)
			if err := c.sleep(ctx, wait.NextBackOff()); err != nil {
				return nil, lastErr
			}
		}
	}

	return nil, lastErr
}

type proxyKey struct{}

// withProxy picks the proxy for one attempt and stores it on the request context.
func (c *HTTPClient) withProxy(ctx context.Context) (context.Context, *proxy.Proxy, error) {
	if c.proxies == nil {
		return ctx, nil, nil
	}
	px, err := c.proxies.Next()
	if err != nil {
		return ctx, nil, err
	}
	return context.WithValue(ctx, proxyKey{}, px.URL), px, nil
}

func proxyFromContext(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(proxyKey{}).(*url.URL); ok {
		return u, nil
	}
	return nil, nil
}

// reportProxy credits or blames px. Canceled requests say nothing about the proxy.
func (c *HTTPClient) reportProxy(ctx context.Context, px *proxy.Proxy, resp *http.Response, err error) {
	switch {
	case px == nil || ctx.Err() != nil:
	case err != nil:
		c.proxies.ReportFailure(px, err)
	case resp.StatusCode == http.StatusProxyAuthRequired:
		c.proxies.ReportFailure(px, fmt.Errorf("HTTP %s", resp.Status))
	default:
		c.proxies.ReportSuccess(px)
	}
}

// ProxyStats reports the proxy pool, if the client has one.
func (c *HTTPClient) ProxyStats() (proxy.Stats, bool) {
	if c.proxies == nil {
		return proxy.Stats{}, false
	}
	return c.proxies.Stats(), true
}

// pace blocks until the next request may be sent. The interval is re-jittered
// on every call.
func (c *HTTPClient) pace(ctx context.Context) error {
	if c.delay <= 0 {
		return nil
	}
	c.rateLimiter.SetLimit(rate.Every(utils.Jitter(c.delay, 0.2)))
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// setRequestHeaders configures request headers including user agent rotation
func (c *HTTPClient) setRequestHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.getNextUserAgent())

	// Browser-like defaults; Accept-Encoding is left to the transport so
	// gzip is decoded transparently.
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Cache-Control", "max-age=0")

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	for name, value := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

// getNextUserAgent returns the next user agent in rotation
func (c *HTTPClient) getNextUserAgent() string {
	c.uaMutex.Lock()
	defer c.uaMutex.Unlock()

	userAgent := c.userAgents[c.currentUA]
	c.currentUA = (c.currentUA + 1) % len(c.userAgents)
	return userAgent
}

// retryBackoff doubles from retryDelay up to 30s, each wait jittered by ±50%.
func (c *HTTPClient) retryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Close releases idle connections.
func (c *HTTPClient) Close() {
	if stats, ok := c.ProxyStats(); ok {
		c.logger.Infof("proxy pool: %d of %d proxies healthy", stats.Healthy, stats.Total)
	}
	c.httpClient.CloseIdleConnections()
}

// shouldRetryStatusCode determines if a status code warrants a retry
func shouldRetryStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		520, 521, 522, 523, 524: // CloudFlare
		return true
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// getDefaultUserAgents returns a set of realistic user agent strings
func getDefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}
