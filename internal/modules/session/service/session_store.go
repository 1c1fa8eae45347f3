package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"komerge/internal/modules/session/domain"
	sessionout "komerge/internal/modules/session/port/out"
	statsin "komerge/internal/modules/stats/port/in"
	"komerge/internal/platform/clock"
	apperrors "komerge/internal/platform/errors"
	"komerge/internal/platform/id"
	"komerge/internal/platform/logctx"
	"komerge/internal/platform/metrics"
)

type TTLs struct {
	Session time.Duration
	File    time.Duration
}

// Renewal reports both deadlines after a renew so callers can tell a live
// conversation apart from files that are about to disappear.
type Renewal struct {
	ExpiresAt        time.Time
	FileCleanupAt    time.Time
	SessionRemaining time.Duration
	FileRemaining    time.Duration
}

type entry struct {
	mu      sync.Mutex
	session domain.Session
	removed bool
}

// SessionStore is the single source of truth for session existence. The map
// lock only guards membership; each session carries its own mutex so work on
// one session never blocks another.
type SessionStore struct {
	clock   clock.Clock
	ids     id.Generator
	files   sessionout.FileStore
	stats   statsin.Usecase
	ttl     TTLs
	metrics *metrics.Recorder

	mu       sync.RWMutex
	sessions map[string]*entry
}

func NewSessionStore(clk clock.Clock, ids id.Generator, files sessionout.FileStore, stats statsin.Usecase, ttl TTLs, rec *metrics.Recorder) *SessionStore {
	return &SessionStore{
		clock:    clk,
		ids:      ids,
		files:    files,
		stats:    stats,
		ttl:      ttl,
		metrics:  rec,
		sessions: map[string]*entry{},
	}
}

// Create stores the upload in a fresh session directory and registers the
// session once the file passed structural validation.
func (s *SessionStore) Create(ctx context.Context, upload io.Reader) (domain.Session, error) {
	sessionID := s.ids.New()
	path, err := s.files.SaveUpload(ctx, sessionID, upload)
	if err != nil {
		return domain.Session{}, err
	}
	discard := func() {
		if rmErr := s.files.Remove(sessionID); rmErr != nil {
			log := logctx.FromContext(ctx)
			log.Warn().Err(rmErr).Str("session_id", sessionID).Msg("discard rejected upload")
		}
	}
	if err := s.stats.Validate(ctx, path); err != nil {
		discard()
		return domain.Session{}, err
	}
	bookIDs, err := s.stats.BookIDs(ctx, path)
	if err != nil {
		discard()
		return domain.Session{}, err
	}

	session := domain.New(sessionID, s.clock.Now(), s.ttl.Session, s.ttl.File, path, bookIDs)
	s.mu.Lock()
	if _, exists := s.sessions[sessionID]; exists {
		s.mu.Unlock()
		discard()
		return domain.Session{}, fmt.Errorf("%w: duplicate session id %s", apperrors.ErrConflict, sessionID)
	}
	s.sessions[sessionID] = &entry{session: session}
	s.mu.Unlock()

	s.metrics.SessionOpened()
	log := logctx.FromContext(ctx)
	log.Info().
		Str("session_id", sessionID).
		Int("books", len(bookIDs)).
		Time("expires_at", session.ExpiresAt).
		Time("file_cleanup_at", session.FileCleanupAt).
		Msg("session created")
	return session.Snapshot(), nil
}

func (s *SessionStore) lookup(sessionID string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	return e, ok
}

// locked runs fn with the session lock held. Sessions past their file cleanup
// time are reported as not found; live additionally rejects sessions whose
// liveness deadline passed.
func (s *SessionStore) locked(sessionID string, live bool, fn func(*domain.Session, time.Time) error) error {
	e, ok := s.lookup(sessionID)
	if !ok {
		return fmt.Errorf("%w: session %s", apperrors.ErrNotFound, sessionID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := s.clock.Now()
	if e.removed || e.session.Reclaimable(now) {
		return fmt.Errorf("%w: session %s", apperrors.ErrNotFound, sessionID)
	}
	if live && e.session.Expired(now) {
		return fmt.Errorf("%w: session %s", apperrors.ErrExpired, sessionID)
	}
	return fn(&e.session, now)
}

// Get returns a snapshot of a live session.
func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.Session, error) {
	var out domain.Session
	err := s.locked(sessionID, true, func(session *domain.Session, _ time.Time) error {
		out = session.Snapshot()
		return nil
	})
	return out, err
}

// Inspect returns a snapshot even when the liveness deadline passed, as long as
// the files are still retained.
func (s *SessionStore) Inspect(_ context.Context, sessionID string) (domain.Session, time.Time, error) {
	var (
		out domain.Session
		at  time.Time
	)
	err := s.locked(sessionID, false, func(session *domain.Session, now time.Time) error {
		out = session.Snapshot()
		at = now
		return nil
	})
	return out, at, err
}

// With runs fn under the session lock. fn must not block on file or database work.
func (s *SessionStore) With(_ context.Context, sessionID string, fn func(*domain.Session) error) error {
	return s.locked(sessionID, true, func(session *domain.Session, _ time.Time) error {
		return fn(session)
	})
}

// Settle is With without the liveness check. It lets an execution that began
// on a live session record its outcome after the deadline passed.
func (s *SessionStore) Settle(_ context.Context, sessionID string, fn func(*domain.Session) error) error {
	return s.locked(sessionID, false, func(session *domain.Session, _ time.Time) error {
		return fn(session)
	})
}

func (s *SessionStore) Renew(ctx context.Context, sessionID string) (Renewal, error) {
	var out Renewal
	err := s.locked(sessionID, true, func(session *domain.Session, now time.Time) error {
		session.Renew(now, s.ttl.Session)
		out = Renewal{
			ExpiresAt:        session.ExpiresAt,
			FileCleanupAt:    session.FileCleanupAt,
			SessionRemaining: session.ExpiresAt.Sub(now),
			FileRemaining:    session.FileCleanupAt.Sub(now),
		}
		return nil
	})
	if err != nil {
		return Renewal{}, err
	}
	log := logctx.FromContext(ctx)
	log.Debug().Str("session_id", sessionID).Time("expires_at", out.ExpiresAt).Msg("session renewed")
	return out, nil
}

// Delete removes the session's files and its entry. Deleting an unknown session
// succeeds. The entry is dropped even when file removal fails; the next
// orphan sweep reclaims what is left.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
		s.metrics.SessionClosed()
	}
	if err := s.files.Remove(sessionID); err != nil {
		if !ok && errors.Is(err, apperrors.ErrInvalidInput) {
			return nil
		}
		return err
	}
	if ok {
		log := logctx.FromContext(ctx)
		log.Info().Str("session_id", sessionID).Msg("session deleted")
	}
	return nil
}

// Due lists sessions whose file retention horizon has passed at now.
func (s *SessionStore) Due(now time.Time) []string {
	s.mu.RLock()
	entries := make(map[string]*entry, len(s.sessions))
	for k, v := range s.sessions {
		entries[k] = v
	}
	s.mu.RUnlock()

	due := make([]string, 0)
	for sessionID, e := range entries {
		e.mu.Lock()
		if e.session.Reclaimable(now) {
			due = append(due, sessionID)
		}
		e.mu.Unlock()
	}
	sort.Strings(due)
	return due
}

func (s *SessionStore) Has(sessionID string) bool {
	_, ok := s.lookup(sessionID)
	return ok
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
