package schedule

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/guildbrand/brand/internal/store"
	"github.com/hazyhaar/guildbrand/dbopen"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) update(_ context.Context, id string) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.ids)
	slices.Sort(out)
	return out
}

func setup(t *testing.T) (*Scheduler, *clock, *recorder) {
	t.Helper()
	s := &store.Store{DB: dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))}
	clk := &clock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	sched := New(s, rec.update, Config{Now: clk.Now}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return sched, clk, rec
}

func TestDayNumber(t *testing.T) {
	day := DayNumber(time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC))
	if day != 1 {
		t.Errorf("got %d, want 1", day)
	}
	a := DayNumber(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	b := DayNumber(time.Date(2026, 5, 1, 23, 59, 59, 0, time.UTC))
	if a != b {
		t.Errorf("same UTC day differs: %d vs %d", a, b)
	}
}

func TestCheck_NewGuildWaitsForNextDay(t *testing.T) {
	// WHAT: A guild registered today is not updated until tomorrow.
	// WHY: Joining a guild must not immediately rewrite its branding.
	sched, clk, rec := setup(t)
	ctx := context.Background()

	if err := sched.Register(ctx, "g1", "one"); err != nil {
		t.Fatal(err)
	}
	n, err := sched.Check(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("dispatched %d on join day", n)
	}

	clk.Advance(24 * time.Hour)
	n, _ = sched.Check(ctx)
	sched.Wait()
	if n != 1 || !slices.Equal(rec.got(), []string{"g1"}) {
		t.Fatalf("next day: dispatched %d, updates %v", n, rec.got())
	}

	// Further checks the same day do nothing.
	clk.Advance(time.Hour)
	n, _ = sched.Check(ctx)
	sched.Wait()
	if n != 0 || len(rec.got()) != 1 {
		t.Errorf("same day recheck: dispatched %d, updates %v", n, rec.got())
	}
}

func TestCheck_SkipsUnavailable(t *testing.T) {
	sched, clk, rec := setup(t)
	ctx := context.Background()

	sched.Register(ctx, "g1", "one")
	sched.Register(ctx, "g2", "two")
	sched.Register(ctx, "g3", "three")
	sched.Unregister(ctx, "g2")

	clk.Advance(24 * time.Hour)
	n, err := sched.Check(ctx)
	if err != nil {
		t.Fatal(err)
	}
	sched.Wait()
	if n != 2 {
		t.Errorf("dispatched %d, want 2", n)
	}
	if got := rec.got(); !slices.Equal(got, []string{"g1", "g3"}) {
		t.Errorf("updates: %v", got)
	}
}

func TestCheck_StampedBeforeUpdateRuns(t *testing.T) {
	// WHAT: The day stamp is written before the update starts.
	// WHY: A check during a slow update must not dispatch the guild again.
	s := &store.Store{DB: dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))}
	clk := &clock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	release := make(chan struct{})
	var calls sync.WaitGroup
	calls.Add(1)
	sched := New(s, func(ctx context.Context, id string) {
		calls.Done()
		<-release
	}, Config{Now: clk.Now}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	sched.Register(ctx, "g1", "one")
	clk.Advance(24 * time.Hour)

	if n, _ := sched.Check(ctx); n != 1 {
		t.Fatalf("first check dispatched %d", n)
	}
	calls.Wait()
	if n, _ := sched.Check(ctx); n != 0 {
		t.Errorf("check during update dispatched %d", n)
	}
	close(release)
	sched.Wait()
}

func TestRun_StopsOnCancel(t *testing.T) {
	sched, _, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
