// internal/browser/chromedp.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/device"
)

// mobileBreakpoint is the viewport width below which a phone is emulated.
const mobileBreakpoint = 768

type chromeFlag struct {
	name  string
	value interface{}
}

// chromeFlags lists the command line switches for opts.
func chromeFlags(opts Options) []chromeFlag {
	flags := []chromeFlag{
		{"no-first-run", true},
		{"no-default-browser-check", true},
		{"disable-gpu", true},
		{"no-sandbox", true}, // required in containers
		{"headless", opts.Headless},
	}
	if opts.UserAgent != "" {
		flags = append(flags, chromeFlag{"user-agent", opts.UserAgent})
	}
	if opts.DisableImages {
		flags = append(flags, chromeFlag{"blink-settings", "imagesEnabled=false"})
	}
	if !opts.VerifyTLS {
		flags = append(flags, chromeFlag{"ignore-certificate-errors", true})
	}
	if opts.Proxy != "" {
		flags = append(flags, chromeFlag{"proxy-server", opts.Proxy})
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		flags = append(flags, chromeFlag{"window-size", fmt.Sprintf("%d,%d", opts.ViewportWidth, opts.ViewportHeight)})
	}
	return flags
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	var out []chromedp.ExecAllocatorOption
	for _, f := range chromeFlags(opts) {
		out = append(out, chromedp.Flag(f.name, f.value))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	return out
}

// Chrome owns one browser process. Tabs opened from it share the process.
type Chrome struct {
	opts        Options
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewChrome launches a browser process.
func NewChrome(opts Options) (*Chrome, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	c := &Chrome{opts: opts, allocCancel: allocCancel, ctx: ctx, cancel: cancel}

	// The first Run starts the process.
	if err := chromedp.Run(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return c, nil
}

// NewTab opens a fresh tab.
func (c *Chrome) NewTab(_ context.Context) (Session, error) {
	ctx, cancel := chromedp.NewContext(c.ctx)
	if err := chromedp.Run(ctx, c.viewport()); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	return &chromeTab{ctx: ctx, cancel: cancel, opts: c.opts}, nil
}

func (c *Chrome) viewport() chromedp.Action {
	if c.opts.ViewportWidth > 0 && c.opts.ViewportWidth < mobileBreakpoint {
		return chromedp.Emulate(device.IPhone8)
	}
	return chromedp.EmulateViewport(int64(c.opts.ViewportWidth), int64(c.opts.ViewportHeight))
}

// Close stops the browser process.
func (c *Chrome) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	return nil
}

type chromeTab struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options
}

// Render navigates and returns the outer HTML once the body is ready.
func (t *chromeTab) Render(ctx context.Context, url string) (*Rendered, error) {
	runCtx := t.ctx
	if t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, t.opts.Timeout)
		defer cancel()
	}
	runCtx, cancel := context.WithCancel(runCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	tasks := chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	}
	if t.opts.WaitSelector != "" {
		tasks = append(tasks, chromedp.WaitVisible(t.opts.WaitSelector))
	}
	if t.opts.WaitDelay > 0 {
		tasks = append(tasks, chromedp.Sleep(t.opts.WaitDelay))
	}

	var out Rendered
	tasks = append(tasks,
		chromedp.Location(&out.FinalURL),
		chromedp.OuterHTML("html", &out.HTML),
	)

	if err := chromedp.Run(runCtx, tasks); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	return &out, nil
}

func (t *chromeTab) Close() error {
	t.cancel()
	return nil
}

// loadTimer keeps a running average of page load times.
type loadTimer struct {
	stats Stats
}

func (l *loadTimer) observe(d time.Duration, err error) {
	if err != nil {
		l.stats.Errors++
		return
	}
	l.stats.PagesLoaded++
	if l.stats.PagesLoaded == 1 {
		l.stats.AverageLoadTime = d
		return
	}
	l.stats.AverageLoadTime += (d - l.stats.AverageLoadTime) / time.Duration(l.stats.PagesLoaded)
}
