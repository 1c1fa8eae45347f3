package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"komerge/internal/modules/stats/domain"
	statsout "komerge/internal/modules/stats/port/out"
	apperrors "komerge/internal/platform/errors"
	"komerge/internal/platform/logctx"
)

type MergeService struct {
	opener statsout.Opener
}

func NewMergeService(opener statsout.Opener) *MergeService {
	return &MergeService{opener: opener}
}

func (s *MergeService) Validate(ctx context.Context, path string) error {
	db, err := s.opener.Open(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Validate(ctx)
}

func (s *MergeService) ListBooks(ctx context.Context, path string) ([]domain.Book, error) {
	db, err := s.opener.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.ListBooks(ctx)
}

func (s *MergeService) BookIDs(ctx context.Context, path string) ([]int64, error) {
	db, err := s.opener.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.BookIDs(ctx)
}

// Execute applies groups to a copy of src and moves the result to dst. dst only
// ever appears fully merged: work happens on a temp file in dst's directory and
// is renamed into place after every group committed.
func (s *MergeService) Execute(ctx context.Context, src, dst string, groups []domain.Group) ([]domain.Plan, error) {
	if len(groups) == 0 {
		return nil, apperrors.ErrNoGroups
	}
	for _, g := range groups {
		if err := g.Validate(); err != nil {
			return nil, err
		}
	}
	if err := domain.Disjoint(groups); err != nil {
		return nil, err
	}
	log := logctx.FromContext(ctx)

	tmp, err := copyToTemp(src, filepath.Dir(dst))
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp)
		}
	}()

	plans, err := s.applyAll(ctx, tmp, groups)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return nil, fmt.Errorf("%w: publish processed database: %v", apperrors.ErrIOFailure, err)
	}
	committed = true
	log.Info().Int("groups", len(plans)).Str("path", dst).Msg("merge applied")
	return plans, nil
}

func (s *MergeService) applyAll(ctx context.Context, path string, groups []domain.Group) ([]domain.Plan, error) {
	db, err := s.opener.Open(ctx, path)
	if err != nil {
		return nil, ioFailure(err)
	}
	defer db.Close()

	plans := make([]domain.Plan, 0, len(groups))
	for _, g := range groups {
		events, err := db.Events(ctx, g.IDs())
		if err != nil {
			return nil, ioFailure(err)
		}
		plans = append(plans, domain.Merge(g, events))
	}
	if err := db.Apply(ctx, plans); err != nil {
		return nil, ioFailure(err)
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("%w: close processed database: %v", apperrors.ErrIOFailure, err)
	}
	return plans, nil
}

// ioFailure tags adapter errors as storage failures unless they already carry a
// more specific classification.
func ioFailure(err error) error {
	switch {
	case errors.Is(err, apperrors.ErrFileMissing),
		errors.Is(err, apperrors.ErrUnknownBook),
		errors.Is(err, apperrors.ErrInvalidDatabase),
		errors.Is(err, apperrors.ErrIOFailure),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", apperrors.ErrIOFailure, err)
	}
}

func copyToTemp(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", apperrors.ErrFileMissing, src)
		}
		return "", fmt.Errorf("%w: open source: %v", apperrors.ErrIOFailure, err)
	}
	defer in.Close()

	out, err := os.CreateTemp(dir, ".merge-*.sqlite3")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", apperrors.ErrFileMissing, dir)
		}
		return "", fmt.Errorf("%w: create temp: %v", apperrors.ErrIOFailure, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("%w: copy source: %v", apperrors.ErrIOFailure, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("%w: close temp: %v", apperrors.ErrIOFailure, err)
	}
	return out.Name(), nil
}
