package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Source builds a complete snapshot from the remote catalog.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (*Snapshot, error)

// Load calls f.
func (f SourceFunc) Load(ctx context.Context) (*Snapshot, error) { return f(ctx) }

// Cache holds the current Snapshot. Reads never wait on a refresh.
type Cache struct {
	source  Source
	logger  *slog.Logger
	current atomic.Pointer[Snapshot]

	refreshes atomic.Int64
	failures  atomic.Int64
}

// NewCache creates a Cache holding an empty snapshot.
func NewCache(source Source, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{source: source, logger: logger}
	c.current.Store(&Snapshot{})
	return c
}

// Refresh loads a new snapshot and swaps it in. On failure the previous
// snapshot is kept and the error (wrapping ErrCatalogRefresh) is returned
// for the caller's information only.
func (c *Cache) Refresh(ctx context.Context) error {
	c.logger.Info("catalog: updating image cache")
	start := time.Now()

	snap, err := c.source.Load(ctx)
	if err == nil && snap == nil {
		err = errors.New("source returned no snapshot")
	}
	if err != nil {
		c.failures.Add(1)
		c.logger.Warn("catalog: refresh failed, keeping previous snapshot", "error", err)
		return fmt.Errorf("%w: %w", ErrCatalogRefresh, err)
	}
	if snap.RefreshedAt.IsZero() {
		snap.RefreshedAt = time.Now()
	}

	c.current.Store(snap)
	c.refreshes.Add(1)
	c.logger.Info("catalog: image cache updated",
		"banners", len(snap.Banners),
		"icons", len(snap.Icons),
		"icon_origin", snap.IconOrigin,
		"banner_origin", snap.BannerOrigin,
		"logo_bytes", len(snap.Logo),
		"duration", time.Since(start))
	return nil
}

// Snapshot returns the current snapshot. The result must not be modified.
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// Get returns the reference pool for size from the current snapshot.
func (c *Cache) Get(size SizeClass) []string {
	return c.current.Load().Refs(size)
}

// Logo returns the cached logo bytes (nil before the first successful refresh).
func (c *Cache) Logo() []byte {
	return c.current.Load().Logo
}

// Counters returns the number of successful and failed refreshes.
func (c *Cache) Counters() (refreshes, failures int64) {
	return c.refreshes.Load(), c.failures.Load()
}

// Ticker is the subset of *time.Ticker the Refresher needs.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) Chan() <-chan time.Time { return t.C }

// RefresherConfig configures the periodic refresh.
type RefresherConfig struct {
	// Interval between refreshes. Default: 12h.
	Interval time.Duration
	// NewTicker overrides the ticker factory (tests).
	NewTicker func(time.Duration) Ticker
}

func (c *RefresherConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = 12 * time.Hour
	}
	if c.NewTicker == nil {
		c.NewTicker = func(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} }
	}
}

// Refresher drives Cache.Refresh on a fixed period. It is owned by the
// composition root, not by the cache.
type Refresher struct {
	cache  *Cache
	config RefresherConfig
	logger *slog.Logger
}

// NewRefresher creates a Refresher for cache.
func NewRefresher(cache *Cache, cfg RefresherConfig, logger *slog.Logger) *Refresher {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{cache: cache, config: cfg, logger: logger}
}

// Run refreshes once immediately, then on every tick. Blocks until ctx is
// cancelled. Refresh errors are absorbed by the cache.
func (r *Refresher) Run(ctx context.Context) {
	r.logger.Info("catalog: refresher started", "interval", r.config.Interval)

	ticker := r.config.NewTicker(r.config.Interval)
	defer ticker.Stop()

	_ = r.cache.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("catalog: refresher stopped")
			return
		case <-ticker.Chan():
			_ = r.cache.Refresh(ctx)
		}
	}
}
