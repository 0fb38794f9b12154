// internal/proxy/pool.go
package proxy

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/valpere/MediaScrapexter/internal/utils"
)

// Pool hands out proxies according to its rotation strategy.
type Pool struct {
	config       Config
	proxies      []*Proxy
	currentIndex int
	mu           sync.Mutex
	now          func() time.Time
	logger       utils.Logger
}

// NewPool parses cfg.URLs. An empty list is an error; callers without
// proxies should not build a pool.
func NewPool(cfg Config, logger utils.Logger) (*Pool, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("proxy pool needs at least one URL")
	}
	if cfg.Rotation == "" {
		cfg.Rotation = RotationRoundRobin
	}
	if cfg.Rotation != RotationRoundRobin && cfg.Rotation != RotationRandom {
		return nil, fmt.Errorf("unsupported proxy rotation: %s", cfg.Rotation)
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.RecoveryTime <= 0 {
		cfg.RecoveryTime = 5 * time.Minute
	}
	if logger == nil {
		logger = utils.NewComponentLogger("proxy")
	}

	pool := &Pool{config: cfg, now: time.Now, logger: logger}
	for i, raw := range cfg.URLs {
		u, err := ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("proxy %d: %w", i, err)
		}
		pool.proxies = append(pool.proxies, &Proxy{URL: u})
	}
	return pool, nil
}

// ParseURL accepts http, https and socks5 proxy URLs.
func ParseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy URL %q has no host", u.Redacted())
	}
	return u, nil
}

// Next returns the proxy for the next request.
func (p *Pool) Next() (*Proxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var px *Proxy
	switch p.config.Rotation {
	case RotationRandom:
		available := p.available()
		if len(available) > 0 {
			px = available[rand.Intn(len(available))]
		}
	default:
		for i := 0; i < len(p.proxies); i++ {
			index := (p.currentIndex + i) % len(p.proxies)
			if p.usable(p.proxies[index]) {
				px = p.proxies[index]
				p.currentIndex = (index + 1) % len(p.proxies)
				break
			}
		}
	}
	if px == nil {
		return nil, ErrNoHealthyProxy
	}

	px.mu.Lock()
	px.uses++
	px.mu.Unlock()
	return px, nil
}

func (p *Pool) available() []*Proxy {
	var out []*Proxy
	for _, px := range p.proxies {
		if p.usable(px) {
			out = append(out, px)
		}
	}
	return out
}

// usable reports whether px is below the failure threshold or has served
// its recovery time.
func (p *Pool) usable(px *Proxy) bool {
	px.mu.Lock()
	defer px.mu.Unlock()
	if px.failures < p.config.FailureThreshold {
		return true
	}
	if p.now().Sub(px.lastFailure) >= p.config.RecoveryTime {
		px.failures = 0
		p.logger.WithField("proxy", px.URL.Redacted()).Info("proxy back in rotation")
		return true
	}
	return false
}

// ReportSuccess resets the failure streak of px.
func (p *Pool) ReportSuccess(px *Proxy) {
	if px == nil {
		return
	}
	px.mu.Lock()
	px.failures = 0
	px.successes++
	px.mu.Unlock()
}

// ReportFailure counts a failed request through px.
func (p *Pool) ReportFailure(px *Proxy, err error) {
	if px == nil {
		return
	}
	px.mu.Lock()
	px.failures++
	px.lastFailure = p.now()
	benched := px.failures == p.config.FailureThreshold
	px.mu.Unlock()

	if benched {
		p.logger.WithField("proxy", px.URL.Redacted()).Warnf("proxy benched for %s: %v", p.config.RecoveryTime, err)
	}
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{Total: len(p.proxies)}
	for _, px := range p.proxies {
		px.mu.Lock()
		stat := ProxyStat{
			URL:      px.URL.Redacted(),
			Healthy:  px.failures < p.config.FailureThreshold,
			UseCount: px.uses,
		}
		if px.uses > 0 {
			stat.SuccessRate = float64(px.successes) / float64(px.uses)
		}
		px.mu.Unlock()
		if stat.Healthy {
			stats.Healthy++
		}
		stats.Proxies = append(stats.Proxies, stat)
	}
	return stats
}
