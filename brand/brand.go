// Package brand rotates the icon and banner of every guild once a day.
//
// The pipeline for an icon:
//
//	catalog.Cache → sample → fetch (concurrent) → composite (concurrent) → animate → Transport
//
// A banner is a single sampled photo pushed as-is. Any failure aborts the
// artifact: nothing partial is ever pushed.
//
// Usage:
//
//	svc, err := brand.New(cfg, logger)
//	defer svc.Close()
//	svc.SetTransport(bot)
//	svc.RegisterMCP(mcpServer)
//	svc.Start(ctx)
package brand

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/guildbrand/animate"
	"github.com/hazyhaar/guildbrand/brand/internal/schedule"
	"github.com/hazyhaar/guildbrand/brand/internal/store"
	"github.com/hazyhaar/guildbrand/catalog"
	"github.com/hazyhaar/guildbrand/composite"
	"github.com/hazyhaar/guildbrand/dbopen"
	"github.com/hazyhaar/guildbrand/fetch"
	"github.com/hazyhaar/guildbrand/sample"
)

// Transport pushes artifacts to a guild.
type Transport interface {
	SetIcon(ctx context.Context, guildID string, gif []byte) error
	SetBanner(ctx context.Context, guildID string, jpeg []byte) error
}

// Compositor overlays the logo on one base image. Satisfied by *composite.Compositor.
type Compositor interface {
	OverlayLogo(base, logo []byte) ([]byte, error)
}

// Encoder assembles frames into an animation. Satisfied by *animate.Encoder.
type Encoder interface {
	EncodeAnimation(frames [][]byte, delay time.Duration, loopCount int) ([]byte, error)
}

// Triggers recorded on runs.
const (
	TriggerDaily  = "daily"
	TriggerManual = "manual"
	TriggerAPI    = "api"
	TriggerMCP    = "mcp"
)

// Option customises a Service.
type Option func(*Service)

// WithSource replaces the CMS GraphQL source.
func WithSource(src catalog.Source) Option { return func(s *Service) { s.source = src } }

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f catalog.Fetcher) Option { return func(s *Service) { s.fetcher = f } }

// WithCompositor replaces the logo compositor.
func WithCompositor(c Compositor) Option { return func(s *Service) { s.compositor = c } }

// WithEncoder replaces the GIF encoder.
func WithEncoder(e Encoder) Option { return func(s *Service) { s.encoder = e } }

// WithClock overrides the scheduler clock.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// Service is the branding orchestrator.
type Service struct {
	store      *store.Store
	cache      *catalog.Cache
	refresher  *catalog.Refresher
	scheduler  *schedule.Scheduler
	source     catalog.Source
	fetcher    catalog.Fetcher
	compositor Compositor
	encoder    Encoder
	now        func() time.Time
	config     *Config
	logger     *slog.Logger

	mu        sync.RWMutex
	transport Transport

	cancel context.CancelFunc
	loops  sync.WaitGroup
}

// New opens the database and wires the pipeline. The transport is attached
// later with SetTransport.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{config: cfg, logger: logger}
	for _, o := range opts {
		o(s)
	}

	if s.fetcher == nil {
		s.fetcher = fetch.New(cfg.Fetch)
	}
	if s.source == nil {
		s.source = catalog.NewGraphQLSource(nil, s.fetcher, cfg.Catalog.graphQL())
	}
	if s.compositor == nil {
		s.compositor = composite.New(cfg.Composite)
	}
	if s.encoder == nil {
		s.encoder = animate.New(cfg.Animate)
	}

	var dbOpts []dbopen.Option
	if cfg.DBBusyTimeout > 0 {
		dbOpts = append(dbOpts, dbopen.WithBusyTimeout(int(cfg.DBBusyTimeout.Milliseconds())))
	}
	if cfg.DBSynchronous != "" {
		dbOpts = append(dbOpts, dbopen.WithSynchronous(cfg.DBSynchronous))
	}
	st, err := store.Open(cfg.DBPath, dbOpts...)
	if err != nil {
		return nil, fmt.Errorf("brand: open store: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		st.DB.SetMaxOpenConns(1)
	}
	s.store = st

	s.cache = catalog.NewCache(s.source, logger)
	s.refresher = catalog.NewRefresher(s.cache, catalog.RefresherConfig{
		Interval: cfg.Catalog.RefreshInterval,
	}, logger)
	s.scheduler = schedule.New(st, s.UpdateGuild, schedule.Config{
		CheckInterval: cfg.Scheduler.CheckInterval,
		Now:           s.now,
	}, logger)

	return s, nil
}

// SetTransport attaches the transport used by Randomize*.
func (s *Service) SetTransport(t Transport) {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
}

func (s *Service) getTransport() Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport
}

// Start launches the catalog refresher and, unless disabled, the daily
// scheduler. Both stop when ctx is cancelled or Close is called.
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		s.refresher.Run(ctx)
	}()
	if !s.config.Scheduler.Disabled {
		s.loops.Add(1)
		go func() {
			defer s.loops.Done()
			s.scheduler.Run(ctx)
		}()
	}
	s.logger.Info("brand: started", "db", s.config.DBPath)
}

// Close stops the background loops, waits for dispatched daily updates to
// record their runs, then closes the database.
func (s *Service) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.loops.Wait()
	s.scheduler.Wait()
	return s.store.Close()
}

// --- artifact production ---

// ProduceIconArtifact samples icon photos, brands each with the logo and
// returns the animated GIF.
func (s *Service) ProduceIconArtifact(ctx context.Context, guildID string) ([]byte, error) {
	data, _, err := s.produceIcon(ctx, guildID)
	return data, err
}

// ProduceBannerImage samples one banner photo and returns its bytes unchanged.
func (s *Service) ProduceBannerImage(ctx context.Context, guildID string) ([]byte, error) {
	refs := sample.Pick(s.cache.Get(catalog.Banner), 1)
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: banner pool is empty", ErrNoImages)
	}
	data, err := s.fetcher.Fetch(ctx, refs[0])
	if err != nil {
		return nil, err
	}
	s.logger.Info("brand: fetched images", "guild_id", guildID, "kind", "banner", "count", 1)
	return data, nil
}

func (s *Service) produceIcon(ctx context.Context, guildID string) ([]byte, int, error) {
	snap := s.cache.Snapshot()
	refs := sample.Pick(snap.Icons, s.config.Icon.Frames)
	if len(refs) == 0 {
		return nil, 0, fmt.Errorf("%w: icon pool is empty", ErrNoImages)
	}

	photos, err := s.fetchAll(ctx, refs)
	if err != nil {
		return nil, 0, err
	}
	s.logger.Info("brand: fetched images", "guild_id", guildID, "kind", "icon", "count", len(photos))

	frames, err := s.compositeAll(ctx, photos, snap.Logo)
	if err != nil {
		return nil, 0, err
	}
	s.logger.Info("brand: added logos", "guild_id", guildID, "count", len(frames))

	gif, err := s.encoder.EncodeAnimation(frames, s.config.Icon.Delay, s.config.Icon.LoopCount)
	if err != nil {
		return nil, 0, err
	}
	s.logger.Info("brand: created GIF", "guild_id", guildID, "bytes", len(gif))
	return gif, len(refs), nil
}

// fetchAll fetches every reference concurrently. Results keep the order of refs.
func (s *Service) fetchAll(ctx context.Context, refs []string) ([][]byte, error) {
	out := make([][]byte, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			data, err := s.fetcher.Fetch(gctx, ref)
			if err != nil {
				return err
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// compositeAll overlays the logo on every photo, at most Icon.Concurrency at once.
func (s *Service) compositeAll(ctx context.Context, photos [][]byte, logo []byte) ([][]byte, error) {
	out := make([][]byte, len(photos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Icon.Concurrency)
	for i, photo := range photos {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			frame, err := s.compositor.OverlayLogo(photo, logo)
			if err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
			out[i] = frame
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Preview produces an artifact without pushing it and returns it with its
// content type.
func (s *Service) Preview(ctx context.Context, size catalog.SizeClass) ([]byte, string, error) {
	if size == catalog.Icon {
		data, err := s.ProduceIconArtifact(ctx, "preview")
		return data, "image/gif", err
	}
	data, err := s.ProduceBannerImage(ctx, "preview")
	return data, "image/jpeg", err
}

// --- guild actions ---

// RandomizeIcon produces a new icon for guildID, pushes it and records the run.
func (s *Service) RandomizeIcon(ctx context.Context, guildID, trigger string) (*store.Run, error) {
	return s.randomize(ctx, guildID, catalog.Icon, trigger)
}

// RandomizeBanner produces a new banner for guildID, pushes it and records the run.
func (s *Service) RandomizeBanner(ctx context.Context, guildID, trigger string) (*store.Run, error) {
	return s.randomize(ctx, guildID, catalog.Banner, trigger)
}

// Randomize dispatches on the size class.
func (s *Service) Randomize(ctx context.Context, guildID string, size catalog.SizeClass, trigger string) (*store.Run, error) {
	return s.randomize(ctx, guildID, size, trigger)
}

func (s *Service) randomize(ctx context.Context, guildID string, size catalog.SizeClass, trigger string) (*store.Run, error) {
	t := s.getTransport()
	if t == nil {
		return nil, ErrNoTransport
	}
	g, err := s.store.GetGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if g == nil || !g.Available {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGuild, guildID)
	}

	run := &store.Run{GuildID: guildID, Kind: size.String(), Trigger: trigger}
	if err := s.store.InsertRun(ctx, run); err != nil {
		return nil, fmt.Errorf("brand: record run: %w", err)
	}

	var data []byte
	images := 1
	switch size {
	case catalog.Icon:
		data, images, err = s.produceIcon(ctx, guildID)
		if err == nil {
			err = t.SetIcon(ctx, guildID, data)
		}
	default:
		data, err = s.ProduceBannerImage(ctx, guildID)
		if err == nil {
			err = t.SetBanner(ctx, guildID, data)
		}
	}

	if err != nil {
		images = 0
		data = nil
		s.logger.Warn("brand: update failed",
			"guild_id", guildID, "kind", run.Kind, "trigger", trigger, "error", err)
	} else {
		s.logger.Info("brand: updated",
			"guild_id", guildID, "kind", run.Kind, "trigger", trigger, "bytes", len(data))
	}

	if ferr := s.store.FinishRun(context.WithoutCancel(ctx), run.ID, err, images, len(data)); ferr != nil {
		s.logger.Warn("brand: finish run", "run_id", run.ID, "error", ferr)
	}
	run.Images, run.Bytes = images, len(data)
	if err != nil {
		run.Status, run.Error = store.StatusFailed, err.Error()
		return run, err
	}
	run.Status = store.StatusOK
	return run, nil
}

// Command handles a chat command asking for a new icon or banner.
func (s *Service) Command(ctx context.Context, guildID string, size catalog.SizeClass) error {
	_, err := s.randomize(ctx, guildID, size, TriggerManual)
	return err
}

// UpdateGuild is the daily action: icon then banner, independently.
func (s *Service) UpdateGuild(ctx context.Context, guildID string) {
	s.RandomizeIcon(ctx, guildID, TriggerDaily)
	s.RandomizeBanner(ctx, guildID, TriggerDaily)
}

// GuildAvailable registers a guild; its first automatic update is tomorrow.
func (s *Service) GuildAvailable(ctx context.Context, guildID, name string) error {
	if err := s.scheduler.Register(ctx, guildID, name); err != nil {
		return err
	}
	s.logger.Info("brand: guild available", "guild_id", guildID, "name", name)
	return nil
}

// GuildUnavailable stops the daily updates of a guild.
func (s *Service) GuildUnavailable(ctx context.Context, guildID string) error {
	if err := s.scheduler.Unregister(ctx, guildID); err != nil {
		return err
	}
	s.logger.Info("brand: guild unavailable", "guild_id", guildID)
	return nil
}

// --- catalog and state ---

// RefreshCatalog refreshes the catalog now.
func (s *Service) RefreshCatalog(ctx context.Context) error {
	return s.cache.Refresh(ctx)
}

// CatalogStats summarises the current snapshot.
func (s *Service) CatalogStats() catalog.Stats {
	return s.cache.Snapshot().Stats()
}

// ListGuilds lists registered guilds.
func (s *Service) ListGuilds(ctx context.Context, availableOnly bool) ([]*store.Guild, error) {
	return s.store.ListGuilds(ctx, availableOnly)
}

// ListRuns lists recent runs of a guild (all guilds when guildID is empty).
func (s *Service) ListRuns(ctx context.Context, guildID string, limit int) ([]*store.Run, error) {
	return s.store.ListRuns(ctx, guildID, limit)
}

// Stats holds service-wide counters.
type Stats struct {
	Catalog          catalog.Stats  `json:"catalog"`
	CatalogRefreshes int64          `json:"catalog_refreshes"`
	CatalogFailures  int64          `json:"catalog_failures"`
	Guilds           int            `json:"guilds"`
	Runs             map[string]int `json:"runs"`
}

// Stats returns catalog, guild and run counts.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	guilds, err := s.store.ListGuilds(ctx, true)
	if err != nil {
		return nil, err
	}
	runs, err := s.store.CountRuns(ctx)
	if err != nil {
		return nil, err
	}
	ok, failed := s.cache.Counters()
	return &Stats{
		Catalog:          s.CatalogStats(),
		CatalogRefreshes: ok,
		CatalogFailures:  failed,
		Guilds:           len(guilds),
		Runs:             runs,
	}, nil
}
