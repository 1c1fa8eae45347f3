package domain

import (
	"time"

	apperrors "komerge/internal/platform/errors"
)

// Session is one user's sandbox around an uploaded statistics database.
//
// ExpiresAt is the renewable liveness deadline. FileCleanupAt is fixed at
// creation and bounds how long the files may stay on disk; renewals never move it.
type Session struct {
	ID            string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	FileCleanupAt time.Time
	UploadPath    string
	ProcessedPath string
	State         State
	Groups        Registry
	Books         map[int64]struct{}
}

func New(id string, now time.Time, sessionTTL, fileTTL time.Duration, uploadPath string, bookIDs []int64) Session {
	books := make(map[int64]struct{}, len(bookIDs))
	for _, b := range bookIDs {
		books[b] = struct{}{}
	}
	return Session{
		ID:            id,
		CreatedAt:     now,
		ExpiresAt:     now.Add(sessionTTL),
		FileCleanupAt: now.Add(fileTTL),
		UploadPath:    uploadPath,
		State:         StateCreated,
		Books:         books,
	}
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Reclaimable reports whether the file retention horizon has passed. Such a
// session is treated as gone even before the sweeper removes it.
func (s Session) Reclaimable(now time.Time) bool {
	return !now.Before(s.FileCleanupAt)
}

// Renew pushes the liveness deadline ttl past now.
func (s *Session) Renew(now time.Time, ttl time.Duration) {
	s.ExpiresAt = now.Add(ttl)
}

func (s *Session) AddGroup(g Group) (Group, error) {
	if err := s.State.Mutable(); err != nil {
		return Group{}, err
	}
	added, err := s.Groups.Add(g, s.Books)
	if err != nil {
		return Group{}, err
	}
	s.State = StateGroupsPending
	return added, nil
}

func (s *Session) RemoveLastGroup() (Group, error) {
	if err := s.State.Mutable(); err != nil {
		return Group{}, err
	}
	return s.Groups.RemoveLast()
}

func (s *Session) ClearGroups() error {
	if err := s.State.Mutable(); err != nil {
		return err
	}
	s.Groups.Clear()
	return nil
}

// BeginExecution freezes the groups and returns the snapshot to merge.
func (s *Session) BeginExecution() ([]Group, error) {
	switch s.State {
	case StateExecuting:
		return nil, apperrors.ErrExecutionInProgress
	case StateExecuted:
		return nil, apperrors.ErrAlreadyExecuted
	}
	if s.Groups.Len() == 0 {
		return nil, apperrors.ErrNoGroups
	}
	s.State = StateExecuting
	return s.Groups.Groups(), nil
}

// FinishExecution records the outcome of a merge started by BeginExecution.
// On failure the session returns to GroupsPending and may be executed again.
func (s *Session) FinishExecution(processedPath string, err error) {
	if s.State != StateExecuting {
		return
	}
	if err != nil {
		s.State = StateGroupsPending
		return
	}
	s.ProcessedPath = processedPath
	s.State = StateExecuted
}

func (s Session) Executed() bool {
	return s.State == StateExecuted
}

// Snapshot copies the session so it can be read without holding its lock.
func (s Session) Snapshot() Session {
	out := s
	out.Groups = Registry{groups: s.Groups.Groups()}
	out.Books = make(map[int64]struct{}, len(s.Books))
	for id := range s.Books {
		out.Books[id] = struct{}{}
	}
	return out
}
