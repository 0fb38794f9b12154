// internal/pipeline/pipeline_test.go
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/MediaScrapexter/internal/config"
	apperrors "github.com/valpere/MediaScrapexter/internal/errors"
	"github.com/valpere/MediaScrapexter/internal/media"
	"github.com/valpere/MediaScrapexter/internal/monitoring"
	"github.com/valpere/MediaScrapexter/internal/output"
	"github.com/valpere/MediaScrapexter/internal/scraper"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

type memSaver struct {
	mu      sync.Mutex
	records []output.Record
	saves   int
	err     error
	closed  bool
}

func (m *memSaver) Save(_ context.Context, records []output.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *memSaver) Close() error {
	m.closed = true
	return nil
}

func (m *memSaver) byURL(url string) (output.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.URL == url {
			return r, true
		}
	}
	return output.Record{}, false
}

type failingFetcher struct{}

func (failingFetcher) Fetch(_ context.Context, url string) (*scraper.Page, error) {
	return nil, &scraper.FetchError{URL: url, StatusCode: http.StatusBadGateway, Attempts: 1}
}

func (failingFetcher) Close() error { return nil }

type staticFetcher struct{ html string }

func (f staticFetcher) Fetch(_ context.Context, url string) (*scraper.Page, error) {
	return &scraper.Page{URL: url, FinalURL: url, StatusCode: http.StatusOK, HTML: f.html}, nil
}

func (staticFetcher) Close() error { return nil }

type brokenExtractor struct{}

func (brokenExtractor) ExtractMedia(context.Context, string, string) (*media.Batch, error) {
	return nil, media.ErrScanFailed
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

// siteServer serves two gallery pages, a page without media and a 404.
func siteServer(t *testing.T) *httptest.Server {
	t.Helper()
	logo := pngBytes(t, 3, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gallery":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, `<html><head><title>Gallery</title></head><body>
<h1>Summer</h1><span class="price"> $1,299.00 </span>
<img src="/img/logo.png">
<iframe src="https://www.youtube.com/embed/dQw4w9WgXcQ"></iframe>
</body></html>`)
		case "/plain":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><head><title>Plain</title></head><body><p>no media here</p></body></html>`)
		case "/img/logo.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(logo)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSitePipeline(t *testing.T, srv *httptest.Server, saver output.Saver, cfg Config, opts ...Option) (*Pipeline, string) {
	t.Helper()
	fetcher, err := scraper.NewHTTPFetcherFromConfig(config.ScraperConfig{RetryAttempts: 0}, utils.NewNopLogger())
	require.NoError(t, err)

	root := filepath.Join(t.TempDir(), "media")
	fetchCfg := media.DefaultFetcherConfig()
	fetchCfg.Retry = media.NoRetry()
	extractor := media.NewExtractor(media.ExtractorConfig{
		MediaRoot:     root,
		DownloadMedia: true,
		Fetch:         fetchCfg,
		Extensions:    media.DefaultExtensionTable(),
	}, media.WithLogger(utils.NewNopLogger()))

	base := []Option{WithLogger(utils.NewNopLogger())}
	return New(cfg, fetcher, extractor, saver, append(base, opts...)...), root
}

func TestPipeline_Run(t *testing.T) {
	srv := siteServer(t)
	saver := &memSaver{}
	p, root := newSitePipeline(t, srv, saver, Config{Concurrency: 2, BatchSize: 2},
		WithFieldExtractor(scraper.NewFieldExtractor(map[string]string{"heading": "h1", "price": "span.price"})))

	urls := []string{srv.URL + "/gallery", srv.URL + "/plain", srv.URL + "/missing"}
	summary, err := p.Run(context.Background(), urls)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Pages)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 1, summary.MediaStored)
	assert.Equal(t, 1, summary.Embeds)
	assert.Equal(t, 3, summary.RecordsSaved)
	assert.Contains(t, summary.String(), "2/3 pages succeeded")

	gallery, ok := saver.byURL(srv.URL + "/gallery")
	require.True(t, ok)
	assert.Equal(t, "Gallery", gallery.Title)
	assert.Equal(t, http.StatusOK, gallery.StatusCode)
	assert.Equal(t, "Summer", gallery.Fields["heading"])
	assert.Empty(t, gallery.Error)
	require.Len(t, gallery.Media, 2)
	assert.Equal(t, 1, gallery.MediaStats.Stored)
	assert.Contains(t, gallery.Summary, "1 of 2 references yielded stored media")

	var stored media.Descriptor
	for _, d := range gallery.Media {
		if !d.IsPlatformEmbed {
			stored = d
		}
	}
	assert.Equal(t, media.CategoryImages, stored.Category)
	assert.False(t, filepath.IsAbs(stored.LocalPath))
	assert.FileExists(t, filepath.Join(root, stored.LocalPath))
	require.NotNil(t, stored.Dimensions)
	assert.Equal(t, 3, stored.Dimensions.Width)

	missing, ok := saver.byURL(srv.URL + "/missing")
	require.True(t, ok)
	assert.Contains(t, missing.Error, "404")
	assert.Empty(t, missing.Media)

	m := p.GetMetrics()
	assert.Equal(t, int64(3), m.ProcessedCount)
	assert.Equal(t, int64(1), m.ErrorCount)
	assert.Equal(t, int64(len(pngBytes(t, 3, 2))), m.MediaBytes)
	assert.Positive(t, m.AverageTime)
}

func TestPipeline_Transforms(t *testing.T) {
	srv := siteServer(t)
	saver := &memSaver{}
	ft, err := NewFieldTransformer(map[string][]config.TransformRule{
		"price":   {{Type: "trim"}, {Type: "parse_float"}},
		"heading": {{Type: "uppercase"}},
	})
	require.NoError(t, err)

	p, _ := newSitePipeline(t, srv, saver, Config{},
		WithFieldExtractor(scraper.NewFieldExtractor(map[string]string{"heading": "h1", "price": "span.price"})),
		WithTransformer(ft))

	rec, err := p.ProcessPage(context.Background(), srv.URL+"/gallery")
	require.NoError(t, err)
	assert.Equal(t, 1299.0, rec.Fields["price"])
	assert.Equal(t, "SUMMER", rec.Fields["heading"])
}

func TestPipeline_StopPolicyAborts(t *testing.T) {
	saver := &memSaver{}
	p := New(Config{Concurrency: 1}, failingFetcher{}, brokenExtractor{}, saver,
		WithLogger(utils.NewNopLogger()),
		WithErrorService(apperrors.NewService().WithPolicy(apperrors.FailurePolicy{Mode: "stop"})))

	urls := []string{"https://a.example/1", "https://a.example/2", "https://a.example/3", "https://a.example/4", "https://a.example/5"}
	summary, err := p.Run(context.Background(), urls)
	require.ErrorIs(t, err, apperrors.ErrRunAborted)

	assert.Positive(t, summary.Skipped)
	assert.Equal(t, len(urls), summary.Pages+summary.Skipped)
	assert.Equal(t, summary.Pages, summary.Failed)
	assert.Len(t, saver.records, summary.Pages)
}

func TestPipeline_ContinuePolicyKeepsGoing(t *testing.T) {
	saver := &memSaver{}
	p := New(Config{Concurrency: 3, BatchSize: 10}, failingFetcher{}, brokenExtractor{}, saver,
		WithLogger(utils.NewNopLogger()))

	urls := []string{"https://a.example/1", "https://a.example/2", "https://a.example/3"}
	summary, err := p.Run(context.Background(), urls)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Failed)
	assert.Equal(t, 1, saver.saves)
	for _, r := range saver.records {
		assert.Contains(t, r.Error, "502")
	}
}

func TestPipeline_ScanFailureFailsPage(t *testing.T) {
	saver := &memSaver{}
	p := New(Config{}, staticFetcher{html: "<title>T</title>"}, brokenExtractor{}, saver, WithLogger(utils.NewNopLogger()))

	rec, err := p.ProcessPage(context.Background(), "https://a.example/")
	require.ErrorIs(t, err, media.ErrScanFailed)
	assert.Equal(t, "T", rec.Title)
	assert.Contains(t, rec.Error, "media extraction")
}

func TestPipeline_SaveFailure(t *testing.T) {
	saver := &memSaver{err: errors.New("disk full")}
	p := New(Config{}, staticFetcher{html: "<p>x</p>"}, media.NewExtractor(media.ExtractorConfig{},
		media.WithLogger(utils.NewNopLogger())), saver, WithLogger(utils.NewNopLogger()))

	_, err := p.Run(context.Background(), []string{"https://a.example/"})
	require.Error(t, err)

	var structured *utils.StructuredError
	require.True(t, errors.As(err, &structured))
	assert.Equal(t, utils.ErrCodeOutputFailed, structured.Code)
	assert.Equal(t, "custom", structured.Context["backend"])
	assert.Equal(t, apperrors.ExitOutput, apperrors.NewService().GetExitCode(err))
}

func TestPipeline_CanceledContextFlushes(t *testing.T) {
	saver := &memSaver{}
	p := New(Config{BatchSize: 100}, staticFetcher{html: "<p>x</p>"}, media.NewExtractor(media.ExtractorConfig{},
		media.WithLogger(utils.NewNopLogger())), saver, WithLogger(utils.NewNopLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := p.Run(ctx, []string{"https://a.example/1", "https://a.example/2"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, summary.Skipped)
	assert.Empty(t, saver.records)
}

func TestPipeline_Close(t *testing.T) {
	saver := &memSaver{}
	p := New(Config{BatchSize: 5}, staticFetcher{html: "<p>x</p>"}, media.NewExtractor(media.ExtractorConfig{},
		media.WithLogger(utils.NewNopLogger())), saver, WithLogger(utils.NewNopLogger()))

	rec, err := p.ProcessPage(context.Background(), "https://a.example/")
	require.NoError(t, err)
	require.NoError(t, p.enqueue(context.Background(), rec))
	assert.Empty(t, saver.records)

	require.NoError(t, p.Close())
	assert.Len(t, saver.records, 1)
	assert.True(t, saver.closed)
}

func TestNewFromConfig(t *testing.T) {
	srv := siteServer(t)
	dir := t.TempDir()
	outPath := filepath.Join(dir, "pages.json")

	cfg, err := config.LoadFromBytes([]byte(fmt.Sprintf(`
name: gallery
urls: ["%[1]s/gallery", "%[1]s/plain"]
concurrency: 2
scraper:
  selectors:
    heading: h1
storage:
  media_root: %[2]s
output:
  format: json
  path: %[3]s
`, srv.URL, filepath.Join(dir, "media"), outPath)))
	require.NoError(t, err)

	metrics := monitoring.NewMetrics("")
	p, err := NewFromConfig(context.Background(), cfg, metrics, utils.NewNopLogger())
	require.NoError(t, err)

	urls, err := cfg.ResolveURLs()
	require.NoError(t, err)
	summary, err := p.Run(context.Background(), urls)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	assert.Equal(t, 2, summary.Succeeded)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 2)

	assert.FileExists(t, filepath.Join(dir, "media", "images", filepath.Base(mustStoredPath(t, records))))

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `mediascrapexter_scraper_pages_fetched_total{mode="http",result="success"} 2`)
	assert.Contains(t, body, `mediascrapexter_output_records_saved_total{backend="json",result="success"} 2`)
	assert.Contains(t, body, `mediascrapexter_media_stored_files_total{category="images"} 1`)
}

func TestNewFromConfig_BadTransform(t *testing.T) {
	cfg := config.GenerateTemplate("basic")
	cfg.Scraper.Transforms = map[string][]config.TransformRule{"title": {{Type: "regex", Pattern: "["}}}
	_, err := NewFromConfig(context.Background(), &cfg, nil, utils.NewNopLogger())
	assert.Error(t, err)
}

func mustStoredPath(t *testing.T, records []map[string]interface{}) string {
	t.Helper()
	for _, r := range records {
		items, _ := r["media"].([]interface{})
		for _, item := range items {
			d := item.(map[string]interface{})
			if p, ok := d["local_path"].(string); ok && p != "" {
				return p
			}
		}
	}
	t.Fatal("no stored media in output")
	return ""
}

func TestPipeline_ProcessHTML(t *testing.T) {
	srv := siteServer(t)
	p, _ := newSitePipeline(t, srv, &memSaver{}, Config{})

	rec, err := p.ProcessHTML(context.Background(), srv.URL+"/articles/1",
		`<title>Posted</title><img src="../img/logo.png"><a href="/files/missing.pdf">pdf</a>`)
	require.NoError(t, err)
	assert.Equal(t, "Posted", rec.Title)
	assert.Equal(t, 2, rec.MediaStats.Discovered)
	assert.Equal(t, 1, rec.MediaStats.Stored)
	assert.Equal(t, srv.URL+"/img/logo.png", rec.Media[0].AbsoluteURL)

	_, err = p.ProcessHTML(context.Background(), srv.URL, "   ")
	assert.ErrorIs(t, err, scraper.ErrEmptyPage)
}
