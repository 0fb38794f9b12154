// internal/server/server_test.go
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/MediaScrapexter/internal/config"
	"github.com/valpere/MediaScrapexter/internal/media"
	"github.com/valpere/MediaScrapexter/internal/monitoring"
	"github.com/valpere/MediaScrapexter/internal/output"
	"github.com/valpere/MediaScrapexter/internal/pipeline"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

type stubProcessor struct {
	mu       sync.Mutex
	name     string
	fail     error
	htmlBase string
	ranURLs  []string
}

func (s *stubProcessor) ProcessPage(_ context.Context, url string) (output.Record, error) {
	rec := output.NewRecord(url)
	rec.Title = s.name
	if s.fail != nil {
		rec.Error = s.fail.Error()
		return rec, s.fail
	}
	rec.Media = []media.Descriptor{{Category: media.CategoryImages, OriginalURL: "/a.png", SizeBytes: 10}}
	return rec, nil
}

func (s *stubProcessor) ProcessHTML(_ context.Context, pageURL, html string) (output.Record, error) {
	s.mu.Lock()
	s.htmlBase = pageURL
	s.mu.Unlock()
	rec := output.NewRecord(pageURL)
	rec.TextLength = len(html)
	return rec, nil
}

func (s *stubProcessor) Run(_ context.Context, urls []string) (*pipeline.Summary, error) {
	s.mu.Lock()
	s.ranURLs = append(s.ranURLs, urls...)
	s.mu.Unlock()
	return &pipeline.Summary{Pages: len(urls), Succeeded: len(urls), RecordsSaved: len(urls)}, s.fail
}

func (s *stubProcessor) GetMetrics() pipeline.Metrics {
	return pipeline.Metrics{ProcessedCount: 7}
}

func newTestServer(t *testing.T, opts config.ServerConfig, p Processor) *Server {
	t.Helper()
	hm := monitoring.NewHealthManager("test", time.Second)
	return New(opts, p, hm, monitoring.NewMetrics(""), utils.NewNopLogger())
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, &stubProcessor{})

	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var health monitoring.SystemHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, monitoring.HealthStatusHealthy, health.Status)
	assert.Equal(t, "test", health.Version)

	rec = do(t, s.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricsRouteOptional(t *testing.T) {
	s := New(config.ServerConfig{}, &stubProcessor{}, nil, nil, utils.NewNopLogger())
	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExtract(t *testing.T) {
	proc := &stubProcessor{name: "fetched"}
	s := newTestServer(t, config.ServerConfig{}, proc)

	t.Run("by url", func(t *testing.T) {
		rec := do(t, s.Handler(), http.MethodPost, APIRoot+"/extract", `{"url":"https://example.com/p"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got output.Record
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "https://example.com/p", got.URL)
		assert.Equal(t, "fetched", got.Title)
		assert.Len(t, got.Media, 1)
	})

	t.Run("by html", func(t *testing.T) {
		rec := do(t, s.Handler(), http.MethodPost, APIRoot+"/extract", `{"html":"<img src=a.png>","base_url":"https://example.com/dir/"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "https://example.com/dir/", proc.htmlBase)
	})

	tests := []struct {
		name   string
		body   string
		status int
		errMsg string
	}{
		{"missing url", `{}`, http.StatusBadRequest, "url: is required"},
		{"html without base", `{"html":"<p>x</p>"}`, http.StatusBadRequest, "base_url: is required"},
		{"bad scheme", `{"url":"ftp://example.com/x"}`, http.StatusBadRequest, "http or https"},
		{"unknown field", `{"url":"https://example.com","depth":3}`, http.StatusBadRequest, "invalid JSON"},
		{"malformed", `{"url":`, http.StatusBadRequest, "invalid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s.Handler(), http.MethodPost, APIRoot+"/extract", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Error, tt.errMsg)
		})
	}
}

func TestExtract_FailureReturnsRecord(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, &stubProcessor{fail: errors.New("HTTP 503")})

	rec := do(t, s.Handler(), http.MethodPost, APIRoot+"/extract", `{"url":"https://example.com/down"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "HTTP 503", resp.Error)
	require.NotNil(t, resp.Record)
	assert.Equal(t, "https://example.com/down", resp.Record.URL)
}

func TestExtract_BodyLimit(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{MaxBodyBytes: 32}, &stubProcessor{})
	body := `{"html":"` + strings.Repeat("x", 100) + `","base_url":"https://example.com"}`
	rec := do(t, s.Handler(), http.MethodPost, APIRoot+"/extract", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestExtract_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, &stubProcessor{})
	rec := do(t, s.Handler(), http.MethodGet, APIRoot+"/extract", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestScrape(t *testing.T) {
	proc := &stubProcessor{}
	s := newTestServer(t, config.ServerConfig{}, proc)

	rec := do(t, s.Handler(), http.MethodPost, APIRoot+"/scrape", `{"urls":["https://a.example/1","https://a.example/2"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary pipeline.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.RecordsSaved)
	assert.Equal(t, []string{"https://a.example/1", "https://a.example/2"}, proc.ranURLs)

	rec = do(t, s.Handler(), http.MethodPost, APIRoot+"/scrape", `{"urls":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s.Handler(), http.MethodPost, APIRoot+"/scrape", `{"urls":["https://ok.example","nope"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "urls[1]")
}

func TestScrape_RunError(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, &stubProcessor{fail: errors.New("run aborted")})
	rec := do(t, s.Handler(), http.MethodPost, APIRoot+"/scrape", `{"urls":["https://a.example/1"]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run aborted", body["error"])
	assert.NotNil(t, body["summary"])
}

func TestStats(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, &stubProcessor{})
	rec := do(t, s.Handler(), http.MethodGet, APIRoot+"/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var m pipeline.Metrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, int64(7), m.ProcessedCount)
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{APIKey: "valid_api_key_123"}, &stubProcessor{})

	rec := do(t, s.Handler(), http.MethodGet, APIRoot+"/stats", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s.Handler(), http.MethodGet, APIRoot+"/stats", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s.Handler(), http.MethodGet, APIRoot+"/stats", "", "Authorization", "Bearer valid_api_key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a key prefix is not the key")

	rec = do(t, s.Handler(), http.MethodGet, APIRoot+"/stats", "", "Authorization", "Bearer valid_api_key_1234")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s.Handler(), http.MethodGet, APIRoot+"/stats", "", "Authorization", "Bearer valid_api_key_123")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for liveness checks.
	rec = do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{RateLimit: 0.001, Burst: 2}, &stubProcessor{})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, s.Handler(), http.MethodGet, APIRoot+"/stats", "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestSetProcessor(t *testing.T) {
	first := &stubProcessor{name: "first"}
	s := newTestServer(t, config.ServerConfig{}, first)

	old := s.SetProcessor(&stubProcessor{name: "second"})
	assert.Same(t, first, old)

	rec := do(t, s.Handler(), http.MethodPost, APIRoot+"/extract", `{"url":"https://example.com"}`)
	var got output.Record
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&got))
	assert.Equal(t, "second", got.Title)
}

func TestListenAndServe_Shutdown(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{Address: "127.0.0.1:0"}, &stubProcessor{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
