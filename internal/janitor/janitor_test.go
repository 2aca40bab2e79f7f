package janitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"photoresizer/internal/metrics"
	"photoresizer/internal/pipeline"
	"photoresizer/internal/session"
	"photoresizer/internal/testutil"
)

type fakeSweeper struct {
	mu     sync.Mutex
	calls  int
	maxAge time.Duration
}

func (f *fakeSweeper) Sweep(maxIdle time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.maxAge = maxIdle
	return 0
}

func (f *fakeSweeper) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingPruner struct{ called bool }

func (f *failingPruner) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.called = true
	return 0, errors.New("disk on fire")
}

func TestJanitor_RunOnceSweepsSessionsWithTTL(t *testing.T) {
	sw := &fakeSweeper{}
	j := New(Config{Sessions: sw, SessionTTL: 7 * time.Minute})

	j.RunOnce(context.Background())

	if sw.Calls() != 1 {
		t.Fatalf("expected 1 sweep, got %d", sw.Calls())
	}
	if sw.maxAge != 7*time.Minute {
		t.Fatalf("expected TTL 7m, got %s", sw.maxAge)
	}
}

func TestJanitor_PrunesOldEvents(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	logger := metrics.New(database)

	if _, err := database.Exec(`INSERT INTO resize_events (event_type, created_at) VALUES ('upload', ?), ('upload', ?)`,
		time.Now().Add(-100*24*time.Hour).Unix(), time.Now().Unix()); err != nil {
		t.Fatalf("seed events: %v", err)
	}

	j := New(Config{Events: logger, EventRetention: 90 * 24 * time.Hour})
	j.RunOnce(ctx)

	var n int
	if err := database.QueryRow(`SELECT COUNT(*) FROM resize_events`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 remaining event, got %d", n)
	}
}

func TestJanitor_PrunerErrorIsNotFatal(t *testing.T) {
	p := &failingPruner{}
	sw := &fakeSweeper{}
	j := New(Config{Sessions: sw, Events: p})

	j.RunOnce(context.Background())
	if !p.called || sw.Calls() != 1 {
		t.Fatalf("expected both tasks to run")
	}
}

func TestJanitor_RemovesIdleSessions(t *testing.T) {
	store := session.NewStore(pipeline.DefaultOptions())
	s, err := store.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	j := New(Config{Sessions: store, SessionTTL: time.Nanosecond})
	time.Sleep(2 * time.Millisecond)
	j.RunOnce(context.Background())

	if _, err := store.Get(s.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected idle session to be removed, got %v", err)
	}
}

func TestJanitor_StartStop(t *testing.T) {
	sw := &fakeSweeper{}
	j := New(Config{Sessions: sw, Interval: 10 * time.Millisecond})

	j.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for sw.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	j.Stop()

	if sw.Calls() == 0 {
		t.Fatalf("expected janitor to run at least once")
	}
}

func TestJanitor_StopsOnContextCancel(t *testing.T) {
	j := New(Config{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	j.Start(ctx)
	cancel()

	select {
	case <-j.doneChan:
	case <-time.After(2 * time.Second):
		t.Fatalf("janitor did not stop after context cancel")
	}
}
