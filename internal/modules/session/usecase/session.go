package usecase

import (
	"context"
	"io"
	"time"

	"komerge/internal/modules/session/domain"
	sessiondto "komerge/internal/modules/session/dto"
	sessionin "komerge/internal/modules/session/port/in"
	sessionout "komerge/internal/modules/session/port/out"
	"komerge/internal/modules/session/service"
	statsdto "komerge/internal/modules/stats/dto"
	statsin "komerge/internal/modules/stats/port/in"
	apperrors "komerge/internal/platform/errors"
	"komerge/internal/platform/logctx"
	"komerge/internal/platform/metrics"
)

const DownloadFilename = "statistics_fixed.sqlite3"

type Interactor struct {
	store     *service.SessionStore
	scheduler *service.CleanupScheduler
	files     sessionout.FileStore
	stats     statsin.Usecase
	metrics   *metrics.Recorder
}

func NewInteractor(store *service.SessionStore, scheduler *service.CleanupScheduler, files sessionout.FileStore, stats statsin.Usecase, rec *metrics.Recorder) sessionin.Usecase {
	return &Interactor{store: store, scheduler: scheduler, files: files, stats: stats, metrics: rec}
}

func (i *Interactor) Create(ctx context.Context, upload io.Reader) (sessiondto.CreateOutput, error) {
	session, err := i.store.Create(ctx, upload)
	if err != nil {
		return sessiondto.CreateOutput{}, err
	}
	books, err := i.stats.ListBooks(ctx, session.UploadPath)
	if err != nil {
		if delErr := i.store.Delete(ctx, session.ID); delErr != nil {
			log := logctx.FromContext(ctx)
			log.Warn().Err(delErr).Str("session_id", session.ID).Msg("discard unreadable upload")
		}
		return sessiondto.CreateOutput{}, err
	}
	return sessiondto.CreateOutput{
		SessionID:     session.ID,
		Books:         books,
		ExpiresAt:     session.ExpiresAt,
		FileCleanupAt: session.FileCleanupAt,
	}, nil
}

func (i *Interactor) ListBooks(ctx context.Context, sessionID string) (sessiondto.BooksOutput, error) {
	session, err := i.store.Get(ctx, sessionID)
	if err != nil {
		return sessiondto.BooksOutput{}, err
	}
	books, err := i.stats.ListBooks(ctx, session.UploadPath)
	if err != nil {
		return sessiondto.BooksOutput{}, err
	}
	return sessiondto.BooksOutput{
		SessionID: sessionID,
		Books:     books,
		Groups:    toGroups(session.Groups.Groups()),
		Executed:  session.Executed(),
	}, nil
}

func (i *Interactor) AddGroup(ctx context.Context, input sessiondto.AddGroupInput) (sessiondto.GroupsOutput, error) {
	var groups []domain.Group
	err := i.store.With(ctx, input.SessionID, func(s *domain.Session) error {
		if _, err := s.AddGroup(domain.Group{KeepID: input.KeepID, MergeIDs: input.MergeIDs}); err != nil {
			return err
		}
		groups = s.Groups.Groups()
		return nil
	})
	if err != nil {
		return sessiondto.GroupsOutput{}, err
	}
	log := logctx.FromContext(ctx)
	log.Info().
		Str("session_id", input.SessionID).
		Int64("keep_id", input.KeepID).
		Ints64("merge_ids", input.MergeIDs).
		Msg("merge group added")
	return sessiondto.GroupsOutput{SessionID: input.SessionID, Groups: toGroups(groups)}, nil
}

func (i *Interactor) RemoveLastGroup(ctx context.Context, sessionID string) (sessiondto.GroupsOutput, error) {
	var groups []domain.Group
	err := i.store.With(ctx, sessionID, func(s *domain.Session) error {
		if _, err := s.RemoveLastGroup(); err != nil {
			return err
		}
		groups = s.Groups.Groups()
		return nil
	})
	if err != nil {
		return sessiondto.GroupsOutput{}, err
	}
	return sessiondto.GroupsOutput{SessionID: sessionID, Groups: toGroups(groups)}, nil
}

func (i *Interactor) ClearGroups(ctx context.Context, sessionID string) (sessiondto.GroupsOutput, error) {
	err := i.store.With(ctx, sessionID, func(s *domain.Session) error {
		return s.ClearGroups()
	})
	if err != nil {
		return sessiondto.GroupsOutput{}, err
	}
	return sessiondto.GroupsOutput{SessionID: sessionID, Groups: []sessiondto.Group{}}, nil
}

// Execute freezes the session's groups under its lock, merges without holding
// it, then records the outcome. A failed merge leaves the session pending.
func (i *Interactor) Execute(ctx context.Context, sessionID string) (sessiondto.ExecuteOutput, error) {
	ctx = logctx.WithStr(ctx, "session_id", sessionID)
	var (
		groups []domain.Group
		upload string
	)
	err := i.store.With(ctx, sessionID, func(s *domain.Session) error {
		snapshot, err := s.BeginExecution()
		if err != nil {
			return err
		}
		groups = snapshot
		upload = s.UploadPath
		return nil
	})
	if err != nil {
		return sessiondto.ExecuteOutput{}, err
	}

	target := i.files.ProcessedPath(sessionID)
	input := statsdto.ExecuteInput{SourcePath: upload, TargetPath: target, Groups: make([]statsdto.GroupInput, 0, len(groups))}
	for _, g := range groups {
		input.Groups = append(input.Groups, statsdto.GroupInput{KeepID: g.KeepID, MergeIDs: g.MergeIDs})
	}
	out, execErr := i.stats.Execute(ctx, input)
	settleErr := i.store.Settle(ctx, sessionID, func(s *domain.Session) error {
		s.FinishExecution(target, execErr)
		return nil
	})

	log := logctx.FromContext(ctx)
	if execErr != nil {
		i.metrics.MergeFinished("error")
		log.Error().Err(execErr).Msg("merge failed")
		return sessiondto.ExecuteOutput{}, execErr
	}
	if settleErr != nil {
		// The session was reclaimed while merging; drop whatever landed on disk.
		i.metrics.MergeFinished("error")
		if rmErr := i.files.Remove(sessionID); rmErr != nil {
			log.Warn().Err(rmErr).Msg("remove files of reclaimed session")
		}
		return sessiondto.ExecuteOutput{}, settleErr
	}
	i.metrics.MergeFinished("ok")
	log.Info().Int("groups", len(out.Groups)).Msg("merge executed")
	return sessiondto.ExecuteOutput{SessionID: sessionID, Groups: out.Groups, DownloadFilename: DownloadFilename}, nil
}

func (i *Interactor) Result(ctx context.Context, sessionID string) (sessiondto.ResultOutput, error) {
	session, err := i.executed(ctx, sessionID)
	if err != nil {
		return sessiondto.ResultOutput{}, err
	}
	books, err := i.stats.ListBooks(ctx, session.ProcessedPath)
	if err != nil {
		return sessiondto.ResultOutput{}, err
	}
	return sessiondto.ResultOutput{SessionID: sessionID, Books: books}, nil
}

func (i *Interactor) Download(ctx context.Context, sessionID string) (sessiondto.DownloadOutput, error) {
	session, err := i.executed(ctx, sessionID)
	if err != nil {
		return sessiondto.DownloadOutput{}, err
	}
	body, size, err := i.files.Open(session.ProcessedPath)
	if err != nil {
		return sessiondto.DownloadOutput{}, err
	}
	i.metrics.Downloaded()
	return sessiondto.DownloadOutput{Body: body, Size: size, Filename: DownloadFilename}, nil
}

func (i *Interactor) Renew(ctx context.Context, sessionID string) (sessiondto.RenewOutput, error) {
	r, err := i.store.Renew(ctx, sessionID)
	if err != nil {
		return sessiondto.RenewOutput{}, err
	}
	return sessiondto.RenewOutput{
		SessionID:        sessionID,
		ExpiresAt:        r.ExpiresAt,
		FileCleanupAt:    r.FileCleanupAt,
		SessionRemaining: r.SessionRemaining,
		FileRemaining:    r.FileRemaining,
	}, nil
}

func (i *Interactor) Info(ctx context.Context, sessionID string) (sessiondto.InfoOutput, error) {
	session, now, err := i.store.Inspect(ctx, sessionID)
	if err != nil {
		return sessiondto.InfoOutput{}, err
	}
	return sessiondto.InfoOutput{
		SessionID:        session.ID,
		CreatedAt:        session.CreatedAt,
		ExpiresAt:        session.ExpiresAt,
		FileCleanupAt:    session.FileCleanupAt,
		SessionRemaining: nonNegative(session.ExpiresAt.Sub(now)),
		FileRemaining:    nonNegative(session.FileCleanupAt.Sub(now)),
		Expired:          session.Expired(now),
		State:            session.State.String(),
		Executed:         session.Executed(),
		GroupCount:       session.Groups.Len(),
		BookCount:        len(session.Books),
		HasProcessed:     session.ProcessedPath != "",
	}, nil
}

func (i *Interactor) Cleanup(ctx context.Context, sessionID string) error {
	return i.store.Delete(ctx, sessionID)
}

// SweepExpired runs one cleanup cycle on demand, outside the scheduler's ticker.
func (i *Interactor) SweepExpired(ctx context.Context) (sessiondto.SweepOutput, error) {
	report, err := i.scheduler.Cycle(ctx)
	return sessiondto.SweepOutput{
		CleanedSessions: report.Sessions,
		RemovedOrphans:  report.Orphans,
		ActiveSessions:  report.Remaining,
	}, err
}

func (i *Interactor) executed(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := i.store.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if !session.Executed() {
		return domain.Session{}, apperrors.ErrNotExecuted
	}
	return session, nil
}

func toGroups(groups []domain.Group) []sessiondto.Group {
	out := make([]sessiondto.Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, sessiondto.Group{KeepID: g.KeepID, MergeIDs: g.MergeIDs})
	}
	return out
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
