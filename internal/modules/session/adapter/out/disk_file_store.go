package out

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	sessionout "komerge/internal/modules/session/port/out"
	apperrors "komerge/internal/platform/errors"
)

const (
	UploadName    = "upload.sqlite3"
	ProcessedName = "processed.sqlite3"
)

// DiskFileStore keeps each session under <root>/<session_id>/.
type DiskFileStore struct {
	root     string
	maxBytes int64
}

func NewDiskFileStore(root string, maxUploadBytes int64) sessionout.FileStore {
	return &DiskFileStore{root: root, maxBytes: maxUploadBytes}
}

func (s *DiskFileStore) dir(sessionID string) (string, error) {
	if sessionID == "" || sessionID != filepath.Base(sessionID) || strings.HasPrefix(sessionID, ".") {
		return "", fmt.Errorf("%w: session id %q", apperrors.ErrInvalidInput, sessionID)
	}
	return filepath.Join(s.root, sessionID), nil
}

func (s *DiskFileStore) SaveUpload(ctx context.Context, sessionID string, r io.Reader) (string, error) {
	dir, err := s.dir(sessionID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create session dir: %v", apperrors.ErrIOFailure, err)
	}
	path := filepath.Join(dir, UploadName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: create upload: %v", apperrors.ErrIOFailure, err)
	}
	n, err := io.Copy(f, io.LimitReader(ctxReader{ctx: ctx, r: r}, s.maxBytes+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		_ = os.RemoveAll(dir)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: write upload: %v", apperrors.ErrIOFailure, err)
	case n > s.maxBytes:
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("%w: upload exceeds %d bytes", apperrors.ErrInvalidInput, s.maxBytes)
	case closeErr != nil:
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("%w: close upload: %v", apperrors.ErrIOFailure, closeErr)
	}
	return path, nil
}

func (s *DiskFileStore) ProcessedPath(sessionID string) string {
	dir, err := s.dir(sessionID)
	if err != nil {
		return ""
	}
	return filepath.Join(dir, ProcessedName)
}

// Open returns the file at path with its size. A file removed by the sweeper
// surfaces as ErrFileMissing.
func (s *DiskFileStore) Open(path string) (io.ReadCloser, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", apperrors.ErrFileMissing, filepath.Base(path))
		}
		return nil, 0, fmt.Errorf("%w: open %s: %v", apperrors.ErrIOFailure, filepath.Base(path), err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: stat %s: %v", apperrors.ErrIOFailure, filepath.Base(path), err)
	}
	return f, info.Size(), nil
}

// Remove deletes the session directory. Missing directories are not an error.
func (s *DiskFileStore) Remove(sessionID string) error {
	dir, err := s.dir(sessionID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: remove session %s: %v", apperrors.ErrIOFailure, sessionID, err)
	}
	return nil
}

func (s *DiskFileStore) List() ([]sessionout.DirEntry, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list sessions: %v", apperrors.ErrIOFailure, err)
	}
	out := make([]sessionout.DirEntry, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, sessionout.DirEntry{ID: e.Name(), ModTime: info.ModTime()})
	}
	return out, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
