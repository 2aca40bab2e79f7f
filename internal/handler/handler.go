package handler

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"photoresizer/internal/config"
	"photoresizer/internal/metrics"
	"photoresizer/internal/middleware"
	"photoresizer/internal/pipeline"
	"photoresizer/internal/session"
	"photoresizer/internal/worker"
)

type Handler struct {
	db       *sql.DB
	sessions *session.Store
	pool     *worker.Pool
	config   *config.Config
	metrics  *metrics.Logger
	limiter  *middleware.RateLimiter
}

// New wires the HTTP layer. pool may be nil, in which case resizes run on
// the request goroutine with no deadline beyond the request's own.
func New(database *sql.DB, sessions *session.Store, pool *worker.Pool, cfg *config.Config) *Handler {
	if cfg == nil {
		cfg = config.Defaults()
	}

	h := &Handler{
		db:       database,
		sessions: sessions,
		pool:     pool,
		config:   cfg,
		metrics:  metrics.New(database),
	}

	if cfg.RateLimitPerMinute > 0 {
		trusted, err := middleware.ParseTrustedProxyCIDRs(cfg.TrustedProxyCIDRs)
		if err != nil {
			log.Printf("ignoring TRUSTED_PROXY_CIDRS: %v", err)
		}
		h.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			TrustedProxies:    trusted,
		})
	}
	return h
}

// Close releases background resources held by the handler.
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.Close()
	}
}

// resize runs fn on the search pool. A search cut short by the pool
// deadline still yields its best-effort result. A search abandoned by the
// client returns context.Canceled and nothing else.
func (h *Handler) resize(ctx context.Context, fn func(ctx context.Context) (*pipeline.Result, error)) (*pipeline.Result, error) {
	var res *pipeline.Result
	job := func(ctx context.Context) error {
		var err error
		res, err = fn(ctx)
		return err
	}

	var err error
	if h.pool != nil {
		err = h.pool.Do(ctx, job)
	} else {
		err = job(ctx)
	}

	if errors.Is(err, context.Canceled) {
		return nil, err
	}
	if errors.Is(err, context.DeadlineExceeded) && res != nil {
		log.Printf("search deadline reached, serving best-effort %dx%d %dKB after %d iterations",
			res.Width, res.Height, res.SizeKB, res.Iterations)
		return res, nil
	}
	return res, err
}

func (h *Handler) logEvent(ctx context.Context, t metrics.EventType, sessionID string, req pipeline.Request, res *pipeline.Result) {
	// activity counters are best effort; LogEvent already logs failures
	_ = h.metrics.LogResult(ctx, t, sessionID, req, res)
}
