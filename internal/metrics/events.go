package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"photoresizer/internal/pipeline"
)

// EventType represents the type of activity event
type EventType string

const (
	EventUpload   EventType = "upload"
	EventPreview  EventType = "preview"
	EventDownload EventType = "download"
)

// Event is one row of resize_events. Image content is never recorded.
type Event struct {
	Type       EventType
	SessionID  string
	Width      int
	Height     int
	SizeKB     int
	TargetKB   float64
	Iterations int
	Converged  bool
	Format     string
}

// Logger handles activity event logging
type Logger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new metrics logger
func New(db *sql.DB) *Logger {
	return &Logger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// LogEvent inserts an activity event into the database
func (l *Logger) LogEvent(ctx context.Context, e Event) error {
	var target sql.NullFloat64
	if e.TargetKB > 0 {
		target = sql.NullFloat64{Float64: e.TargetKB, Valid: true}
	}

	_, err := l.db.ExecContext(ctx, `INSERT INTO resize_events
        (event_type, session_id, width, height, size_kb, target_kb, iterations, converged, format, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.Type), e.SessionID, e.Width, e.Height, e.SizeKB, target, e.Iterations, e.Converged, e.Format, l.now().Unix())
	if err != nil {
		log.Printf("metrics: failed to log event %s: %v", e.Type, err)
	}
	return err
}

// LogUpload logs a decoded upload with the source dimensions.
func (l *Logger) LogUpload(ctx context.Context, sessionID string, src *pipeline.Source) error {
	e := Event{Type: EventUpload, SessionID: sessionID}
	if src != nil {
		e.Width, e.Height, e.Format = src.Width, src.Height, src.ContentType
	}
	return l.LogEvent(ctx, e)
}

// LogResult logs a preview or download of res.
func (l *Logger) LogResult(ctx context.Context, t EventType, sessionID string, req pipeline.Request, res *pipeline.Result) error {
	return l.LogEvent(ctx, Event{
		Type:       t,
		SessionID:  sessionID,
		Width:      res.Width,
		Height:     res.Height,
		SizeKB:     res.SizeKB,
		TargetKB:   req.TargetKB,
		Iterations: res.Iterations,
		Converged:  res.Converged,
		Format:     string(res.Format),
	})
}

// Stats holds aggregated metrics
type Stats struct {
	Uploads7Days    int64 `json:"uploads_7d"`
	Uploads30Days   int64 `json:"uploads_30d"`
	Previews7Days   int64 `json:"previews_7d"`
	Previews30Days  int64 `json:"previews_30d"`
	Downloads7Days  int64 `json:"downloads_7d"`
	Downloads30Days int64 `json:"downloads_30d"`
	// Searches counts targeted previews/downloads in the last 30 days;
	// ConvergenceRate is the fraction of them that met the tolerance.
	Searches30Days  int64   `json:"searches_30d"`
	ConvergenceRate float64 `json:"convergence_rate"`
	AvgIterations   float64 `json:"avg_iterations"`
}

// GetStats retrieves activity statistics for the last 7 and 30 days.
func (l *Logger) GetStats(ctx context.Context) (*Stats, error) {
	now := l.now()
	sevenDaysAgo := now.Add(-7 * 24 * time.Hour)
	thirtyDaysAgo := now.Add(-30 * 24 * time.Hour)

	stats := &Stats{}
	counts := []struct {
		dst   *int64
		t     EventType
		since time.Time
	}{
		{&stats.Uploads7Days, EventUpload, sevenDaysAgo},
		{&stats.Uploads30Days, EventUpload, thirtyDaysAgo},
		{&stats.Previews7Days, EventPreview, sevenDaysAgo},
		{&stats.Previews30Days, EventPreview, thirtyDaysAgo},
		{&stats.Downloads7Days, EventDownload, sevenDaysAgo},
		{&stats.Downloads30Days, EventDownload, thirtyDaysAgo},
	}
	for _, c := range counts {
		n, err := l.countSince(ctx, c.t, c.since)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}

	var converged sql.NullInt64
	var avgIter sql.NullFloat64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(converged), AVG(iterations)
        FROM resize_events
        WHERE event_type IN ('preview', 'download') AND target_kb IS NOT NULL AND created_at >= ?`,
		thirtyDaysAgo.Unix()).Scan(&stats.Searches30Days, &converged, &avgIter)
	if err != nil {
		return nil, fmt.Errorf("search stats: %w", err)
	}
	if stats.Searches30Days > 0 {
		stats.ConvergenceRate = float64(converged.Int64) / float64(stats.Searches30Days)
		stats.AvgIterations = avgIter.Float64
	}

	return stats, nil
}

func (l *Logger) countSince(ctx context.Context, t EventType, since time.Time) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM resize_events WHERE event_type = ? AND created_at >= ?`,
		string(t), since.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s events: %w", t, err)
	}
	return n, nil
}

// DeleteBefore removes events older than cutoff and returns how many rows
// were deleted.
func (l *Logger) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM resize_events WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	return res.RowsAffected()
}
