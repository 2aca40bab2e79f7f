package janitor

import (
	"context"
	"log"
	"time"
)

// SessionSweeper drops idle editing sessions.
type SessionSweeper interface {
	Sweep(maxIdle time.Duration) int
}

// EventPruner deletes activity events older than a cutoff.
type EventPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor handles periodic cleanup of idle sessions and old activity events
type Janitor struct {
	sessions       SessionSweeper
	events         EventPruner
	sessionTTL     time.Duration
	eventRetention time.Duration
	interval       time.Duration
	now            func() time.Time
	stopChan       chan struct{}
	doneChan       chan struct{}
}

// Config holds janitor configuration
type Config struct {
	Sessions       SessionSweeper
	Events         EventPruner
	SessionTTL     time.Duration
	EventRetention time.Duration
	Interval       time.Duration
}

// New creates a new Janitor instance
func New(cfg Config) *Janitor {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.EventRetention == 0 {
		cfg.EventRetention = 90 * 24 * time.Hour
	}

	return &Janitor{
		sessions:       cfg.Sessions,
		events:         cfg.Events,
		sessionTTL:     cfg.SessionTTL,
		eventRetention: cfg.EventRetention,
		interval:       cfg.Interval,
		now:            func() time.Time { return time.Now().UTC() },
		stopChan:       make(chan struct{}),
		doneChan:       make(chan struct{}),
	}
}

// Start begins the cleanup scheduler in a goroutine
func (j *Janitor) Start(ctx context.Context) {
	go j.run(ctx)
}

// Stop gracefully stops the janitor
func (j *Janitor) Stop() {
	close(j.stopChan)
	<-j.doneChan
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.doneChan)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.RunOnce(ctx)
		case <-j.stopChan:
			log.Println("Janitor: received stop signal, shutting down...")
			return
		case <-ctx.Done():
			log.Println("Janitor: context cancelled, shutting down...")
			return
		}
	}
}

// RunOnce executes one cleanup cycle.
func (j *Janitor) RunOnce(ctx context.Context) {
	start := j.now()

	if j.sessions != nil {
		if n := j.sessions.Sweep(j.sessionTTL); n > 0 {
			log.Printf("Janitor: removed %d idle sessions", n)
		}
	}

	if j.events != nil {
		n, err := j.events.DeleteBefore(ctx, start.Add(-j.eventRetention))
		if err != nil {
			log.Printf("Janitor: failed to delete old activity events: %v", err)
		} else if n > 0 {
			log.Printf("Janitor: deleted %d activity events older than %s", n, j.eventRetention)
		}
	}
}
