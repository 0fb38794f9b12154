// internal/browser/browser_test.go
package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/MediaScrapexter/internal/config"
	"github.com/valpere/MediaScrapexter/internal/scraper"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

type fakeSession struct {
	id     int
	html   string
	err    error
	closed atomic.Bool
}

func (s *fakeSession) Render(ctx context.Context, url string) (*Rendered, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Rendered{HTML: s.html, FinalURL: url + "#final"}, nil
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeSession
	html    string
	err     error
	openErr error
}

func (f *fakeFactory) open(ctx context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := &fakeSession{id: len(f.created), html: f.html, err: f.err}
	f.created = append(f.created, s)
	return s, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.ScraperConfig{
		Timeout:    15 * time.Second,
		UserAgents: []string{"Agent/1"},
		VerifyTLS:  config.BoolPtr(false),
		Proxy:      "http://proxy:8080",
		Browser: config.BrowserConfig{
			Headless:      config.BoolPtr(false),
			WaitSelector:  "#app",
			WaitDelay:     time.Second,
			ViewportWidth: 375,
		},
	}

	opts := OptionsFromConfig(cfg)
	assert.False(t, opts.Headless)
	assert.Equal(t, 15*time.Second, opts.Timeout)
	assert.Equal(t, 375, opts.ViewportWidth)
	assert.Equal(t, 1080, opts.ViewportHeight)
	assert.Equal(t, "#app", opts.WaitSelector)
	assert.Equal(t, "Agent/1", opts.UserAgent)
	assert.False(t, opts.VerifyTLS)
	assert.Equal(t, "http://proxy:8080", opts.Proxy)

	defaults := OptionsFromConfig(config.ScraperConfig{})
	assert.True(t, defaults.Headless)
	assert.True(t, defaults.VerifyTLS)
	assert.Equal(t, 30*time.Second, defaults.Timeout)
}

func flagNames(opts Options) map[string]interface{} {
	out := make(map[string]interface{})
	for _, f := range chromeFlags(opts) {
		out[f.name] = f.value
	}
	return out
}

func TestChromeFlags_TLS(t *testing.T) {
	strict := DefaultOptions()
	assert.NotContains(t, flagNames(strict), "ignore-certificate-errors")

	lax := DefaultOptions()
	lax.VerifyTLS = false
	assert.Equal(t, true, flagNames(lax)["ignore-certificate-errors"])
}

func TestChromeFlags_Options(t *testing.T) {
	opts := DefaultOptions()
	opts.DisableImages = true
	opts.UserAgent = "Agent/2"
	opts.Proxy = "socks5://127.0.0.1:1080"

	flags := flagNames(opts)
	assert.Equal(t, true, flags["headless"])
	assert.Equal(t, "imagesEnabled=false", flags["blink-settings"])
	assert.Equal(t, "Agent/2", flags["user-agent"])
	assert.Equal(t, "socks5://127.0.0.1:1080", flags["proxy-server"])
	assert.Equal(t, "1920,1080", flags["window-size"])
}

func TestPool_ReusesAndBounds(t *testing.T) {
	factory := &fakeFactory{html: "<html></html>"}
	pool := NewPool(factory.open, 2)
	defer pool.Close()

	ctx := context.Background()
	a, err := pool.Get(ctx)
	require.NoError(t, err)
	b, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pool.TotalSize())

	// A third Get blocks until a session is returned.
	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = pool.Get(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	pool.Put(a)
	assert.Equal(t, 1, pool.Size())
	c, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, a, c)
	assert.Equal(t, 2, factory.count())

	pool.Discard(b)
	assert.True(t, b.(*fakeSession).closed.Load())
	assert.Equal(t, 1, pool.TotalSize())
}

func TestPool_Close(t *testing.T) {
	factory := &fakeFactory{}
	pool := NewPool(factory.open, 2)

	ctx := context.Background()
	idle, err := pool.Get(ctx)
	require.NoError(t, err)
	busy, err := pool.Get(ctx)
	require.NoError(t, err)
	pool.Put(idle)

	require.NoError(t, pool.Close())
	assert.True(t, idle.(*fakeSession).closed.Load())
	assert.False(t, busy.(*fakeSession).closed.Load())

	pool.Put(busy)
	assert.True(t, busy.(*fakeSession).closed.Load())
	assert.Equal(t, 0, pool.TotalSize())

	_, err = pool.Get(ctx)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_FactoryError(t *testing.T) {
	pool := NewPool((&fakeFactory{openErr: errors.New("no chrome")}).open, 1)
	_, err := pool.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, pool.TotalSize())
}

func TestFetcher_Fetch(t *testing.T) {
	factory := &fakeFactory{html: "<html><body><img src=\"a.png\"></body></html>"}
	closed := false
	f := newFetcher(NewPool(factory.open, 1), func() error { closed = true; return nil }, utils.NewNopLogger())

	for i := 0; i < 3; i++ {
		page, err := f.Fetch(context.Background(), "https://example.com/gallery")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/gallery#final", page.BaseURL())
		assert.Equal(t, http.StatusOK, page.StatusCode)
		assert.Contains(t, page.HTML, "a.png")
	}
	assert.Equal(t, 1, factory.count())
	assert.Equal(t, int64(3), f.Stats().PagesLoaded)

	require.NoError(t, f.Close())
	assert.True(t, closed)
}

func TestFetcher_RenderErrorDiscardsSession(t *testing.T) {
	factory := &fakeFactory{err: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	f := newFetcher(NewPool(factory.open, 1), nil, utils.NewNopLogger())
	defer f.Close()

	_, err := f.Fetch(context.Background(), "https://nowhere.invalid/")
	var fe *scraper.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
	assert.True(t, factory.created[0].closed.Load())
	assert.Equal(t, int64(1), f.Stats().Errors)

	// The slot was freed, so a new session is opened.
	_, _ = f.Fetch(context.Background(), "https://nowhere.invalid/")
	assert.Equal(t, 2, factory.count())
}

func TestFetcher_EmptyDocument(t *testing.T) {
	f := newFetcher(NewPool((&fakeFactory{}).open, 1), nil, utils.NewNopLogger())
	defer f.Close()

	_, err := f.Fetch(context.Background(), "https://example.com/")
	assert.ErrorIs(t, err, scraper.ErrEmptyPage)
}

func TestLoadTimer(t *testing.T) {
	var l loadTimer
	l.observe(100*time.Millisecond, nil)
	l.observe(300*time.Millisecond, nil)
	l.observe(time.Second, errors.New("boom"))

	assert.Equal(t, int64(2), l.stats.PagesLoaded)
	assert.Equal(t, int64(1), l.stats.Errors)
	assert.Equal(t, 200*time.Millisecond, l.stats.AverageLoadTime)
}

func TestChromeFetcher_Live(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div id="app"></div><script>
document.getElementById("app").innerHTML = '<img src="/rendered.png">';
</script></body></html>`))
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.Timeout = 20 * time.Second
	opts.WaitSelector = "#app img"
	f, err := NewFetcher(opts, utils.NewNopLogger())
	if err != nil {
		t.Skipf("Skipping browser test - Chrome may not be available: %v", err)
	}
	defer f.Close()

	page, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, page.HTML, "/rendered.png")
}
