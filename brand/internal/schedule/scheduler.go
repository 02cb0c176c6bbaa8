// Package schedule runs each available guild's update once per UTC day.
//
// Every check compares a guild's last_update_day with today's day number
// (unix milliseconds / 86400000). A guild is stamped before its update is
// dispatched, so a slow or failing update is not retried until the next day.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/guildbrand/brand/internal/store"
)

const msPerDay = 24 * 60 * 60 * 1000

// DayNumber returns the day number of t.
func DayNumber(t time.Time) int64 {
	return t.UnixMilli() / msPerDay
}

// UpdateFunc performs the daily action for one guild.
type UpdateFunc func(ctx context.Context, guildID string)

// Config controls the scheduler.
type Config struct {
	// CheckInterval is how often guilds are scanned. Default: 1m.
	CheckInterval time.Duration
	// Now overrides the clock (tests).
	Now func() time.Time
}

func (c *Config) defaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Scheduler dispatches daily guild updates.
type Scheduler struct {
	store  *store.Store
	update UpdateFunc
	config Config
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates a daily scheduler.
func New(s *store.Store, update UpdateFunc, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: s, update: update, config: cfg, logger: logger}
}

// Today returns the current day number.
func (s *Scheduler) Today() int64 {
	return DayNumber(s.config.Now())
}

// Register marks a guild available and stamps it with today.
func (s *Scheduler) Register(ctx context.Context, guildID, name string) error {
	return s.store.MarkAvailable(ctx, guildID, name, s.Today())
}

// Unregister marks a guild unavailable; checks skip it from then on.
func (s *Scheduler) Unregister(ctx context.Context, guildID string) error {
	return s.store.MarkUnavailable(ctx, guildID)
}

// Run checks guilds every CheckInterval until ctx is cancelled, then waits
// for dispatched updates to return.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler: started", "check_interval", s.config.CheckInterval)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("scheduler: stopped")
			return
		case <-ticker.C:
			if _, err := s.Check(ctx); err != nil {
				s.logger.Warn("scheduler: check failed", "error", err)
			}
		}
	}
}

// Check dispatches the update of every available guild not yet stamped
// today and returns how many were dispatched. Updates run in their own
// goroutines; Check does not wait for them.
func (s *Scheduler) Check(ctx context.Context) (int, error) {
	guilds, err := s.store.ListGuilds(ctx, true)
	if err != nil {
		return 0, err
	}

	today := s.Today()
	var dispatched int
	for _, g := range guilds {
		if g.LastUpdateDay != nil && *g.LastUpdateDay == today {
			continue
		}
		claimed, err := s.store.ClaimDay(ctx, g.ID, today)
		if err != nil {
			s.logger.Warn("scheduler: stamp failed", "guild_id", g.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		dispatched++
		s.wg.Add(1)
		go func(id string) {
			defer s.wg.Done()
			s.update(ctx, id)
		}(g.ID)
	}

	if dispatched > 0 {
		s.logger.Info("scheduler: dispatched daily updates", "count", dispatched, "day", today)
	}
	return dispatched, nil
}

// Wait blocks until every dispatched update has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
