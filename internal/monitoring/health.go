// internal/monitoring/health.go
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck is a named check. A failing critical check makes the whole
// service unhealthy; a failing non-critical one degrades it.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name     string        `json:"name"`
	Status   HealthStatus  `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Critical bool          `json:"critical"`
}

// SystemHealth represents overall system health information
type SystemHealth struct {
	Status     HealthStatus  `json:"status"`
	Timestamp  time.Time     `json:"timestamp"`
	Version    string        `json:"version,omitempty"`
	Uptime     string        `json:"uptime"`
	Goroutines int           `json:"goroutines"`
	HeapBytes  uint64        `json:"heap_bytes"`
	Checks     []CheckResult `json:"checks,omitempty"`
}

// HealthManager runs registered checks on demand.
type HealthManager struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheck
	timeout time.Duration
	version string
	started time.Time
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string, timeout time.Duration) *HealthManager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthManager{
		checks:  make(map[string]HealthCheck),
		timeout: timeout,
		version: version,
		started: time.Now(),
	}
}

// RegisterCheck adds or replaces a check.
func (hm *HealthManager) RegisterCheck(check HealthCheck) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[check.Name] = check
}

// GetHealth runs every check concurrently and aggregates the result.
func (hm *HealthManager) GetHealth(ctx context.Context) SystemHealth {
	hm.mu.RLock()
	checks := make([]HealthCheck, 0, len(hm.checks))
	for _, c := range hm.checks {
		checks = append(checks, c)
	}
	hm.mu.RUnlock()
	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c HealthCheck) {
			defer wg.Done()
			results[i] = hm.run(ctx, c)
		}(i, c)
	}
	wg.Wait()

	status := HealthStatusHealthy
	for _, r := range results {
		if r.Status == HealthStatusHealthy {
			continue
		}
		if r.Critical {
			status = HealthStatusUnhealthy
			break
		}
		status = HealthStatusDegraded
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemHealth{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Version:    hm.version,
		Uptime:     time.Since(hm.started).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  m.HeapAlloc,
		Checks:     results,
	}
}

func (hm *HealthManager) run(ctx context.Context, c HealthCheck) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	res := CheckResult{Name: c.Name, Status: HealthStatusHealthy, Duration: time.Since(start), Critical: c.Critical}
	if err != nil {
		res.Status = HealthStatusUnhealthy
		res.Error = err.Error()
	}
	return res
}

// HealthHandler serves GetHealth as JSON, with 503 when unhealthy.
func (hm *HealthManager) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hm.GetHealth(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(health) //nolint:errcheck // client went away
	}
}

// DirectoryHealthCheck verifies that dir exists and accepts new files.
func DirectoryHealthCheck(name, dir string, critical bool) HealthCheck {
	return HealthCheck{
		Name:     name,
		Critical: critical,
		Check: func(ctx context.Context) error {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
			f, err := os.CreateTemp(dir, ".health-*")
			if err != nil {
				return fmt.Errorf("%s is not writable: %w", filepath.Clean(dir), err)
			}
			f.Close()
			return os.Remove(f.Name())
		},
	}
}

// GoroutineHealthCheck fails when more than max goroutines are running.
func GoroutineHealthCheck(max int) HealthCheck {
	return HealthCheck{
		Name: "goroutines",
		Check: func(ctx context.Context) error {
			if n := runtime.NumGoroutine(); n > max {
				return fmt.Errorf("%d goroutines running (max %d)", n, max)
			}
			return nil
		},
	}
}
