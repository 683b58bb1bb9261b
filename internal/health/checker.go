// Package health runs periodic dependency checks for the gitquest daemon
// and attempts recovery when one fails.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gitquest/gitquest/internal/infra/kv"
	"github.com/gitquest/gitquest/internal/infra/metrics"
	"github.com/gitquest/gitquest/internal/infra/sqlite"
)

// DefaultInterval is how often the checks run.
const DefaultInterval = 60 * time.Second

// checkTimeout bounds a single check.
const checkTimeout = 5 * time.Second

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	Recovered bool      `json:"recovered,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	log      logrus.FieldLogger
}

// NewChecker creates a checker for the store, the cache and the data
// directory. A memory cache gets swept of expired keys on every run.
func NewChecker(db *sqlite.DB, cache kv.Store, dataDir string, log logrus.FieldLogger) *Checker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	checks := []Check{
		{
			Name:    "sqlite",
			CheckFn: db.PingContext,
		},
		{
			Name:    "data_dir",
			CheckFn: func(ctx context.Context) error { return checkDataDir(dataDir) },
			RecoverFn: func(ctx context.Context) error {
				return os.MkdirAll(dataDir, 0700)
			},
		},
	}
	if cache != nil {
		c := Check{Name: "cache", CheckFn: cache.Ping}
		if mem, ok := cache.(*kv.MemoryStore); ok {
			c.CheckFn = func(ctx context.Context) error {
				mem.Sweep()
				return mem.Ping(ctx)
			}
		}
		checks = append(checks, c)
	}
	return &Checker{
		interval: DefaultInterval,
		checks:   checks,
		log:      log.WithField("component", "health"),
	}
}

// SetInterval changes the check period. Call before Run.
func (c *Checker) SetInterval(d time.Duration) {
	if d > 0 {
		c.interval = d
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		statuses[i] = c.runOne(ctx, check)
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

func (c *Checker) runOne(ctx context.Context, check Check) Status {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	s := Status{Name: check.Name, CheckedAt: time.Now(), Healthy: true}
	err := check.CheckFn(ctx)
	if err != nil && check.RecoverFn != nil {
		if rerr := check.RecoverFn(ctx); rerr == nil {
			metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
			err = check.CheckFn(ctx)
			s.Recovered = err == nil
		}
	}
	if err != nil {
		s.Healthy = false
		s.Error = err.Error()
		if c.log != nil {
			c.log.WithError(err).WithField("check", check.Name).Warn("Health check failed")
		}
	}

	gauge := 0.0
	if s.Healthy {
		gauge = 1
	}
	metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(gauge)
	return s
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

// checkDataDir verifies dir exists and accepts writes.
func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}
