// Package session keeps per-user editing state: the current source image,
// the last request and the raster buffer the engine reuses between previews.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"photoresizer/internal/pipeline"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrStale is returned when a decode finishes after a newer upload
	// has started; its result is discarded.
	ErrStale = errors.New("upload superseded by a newer one")
)

// Session is one editing session. All methods are safe for concurrent use.
// Renders are serialised; uploads never wait for a render to finish.
type Session struct {
	ID string

	mu         sync.Mutex
	generation uint64
	source     *pipeline.Source
	last       pipeline.Request

	// renderMu guards engine, whose raster buffer is shared by all renders.
	renderMu sync.Mutex
	engine   *pipeline.Engine

	now        func() time.Time
	lastActive atomic.Int64 // unix nanoseconds
}

func newSession(id string, opts pipeline.Options, now func() time.Time) *Session {
	s := &Session{ID: id, engine: pipeline.NewEngine(opts), now: now}
	s.touch()
	return s
}

func (s *Session) touch() {
	s.lastActive.Store(s.now().UnixNano())
}

// BeginUpload starts a new upload and returns its generation token. Any
// upload still decoding becomes stale.
func (s *Session) BeginUpload() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.touch()
	return s.generation
}

// CompleteUpload installs src if gen is still the current generation.
func (s *Session) CompleteUpload(gen uint64, src *pipeline.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return ErrStale
	}
	s.source = src
	s.touch()
	return nil
}

// Generation is the token of the most recent upload.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Source returns the current image, or nil before the first upload.
func (s *Session) Source() *pipeline.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// LastRequest is the most recent request passed to Resize.
func (s *Session) LastRequest() pipeline.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Resize runs req against the image current at call time. It returns
// pipeline.ErrNoSource when nothing has been uploaded yet.
func (s *Session) Resize(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	s.mu.Lock()
	s.last = req
	src := s.source
	s.touch()
	s.mu.Unlock()

	if src == nil {
		return nil, pipeline.ErrNoSource
	}

	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	s.touch()
	return s.engine.Resize(ctx, src, req)
}

func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastActive.Load()).UTC()
}

// Store holds sessions in memory, keyed by random UUID.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     pipeline.Options
	now      func() time.Time
}

// NewStore creates an empty store whose sessions use opts.
func NewStore(opts pipeline.Options) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a new empty session.
func (st *Store) Create() (*Session, error) {
	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	s := newSession(id, st.opts, func() time.Time { return st.now() })

	st.mu.Lock()
	st.sessions[id] = s
	st.mu.Unlock()
	return s, nil
}

// Get looks a session up by ID.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete drops a session. Deleting an unknown ID is not an error.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep removes sessions idle for longer than maxIdle and returns how many
// were removed.
func (st *Store) Sweep(maxIdle time.Duration) int {
	cutoff := st.now().Add(-maxIdle)

	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, s := range st.sessions {
		if s.idleSince().Before(cutoff) {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

func newID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
