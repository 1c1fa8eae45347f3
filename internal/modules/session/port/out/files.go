package out

import (
	"context"
	"io"
	"time"
)

// DirEntry describes one session directory found on disk.
type DirEntry struct {
	ID      string
	ModTime time.Time
}

// FileStore owns the per-session directories holding the uploaded and
// processed databases.
type FileStore interface {
	SaveUpload(ctx context.Context, sessionID string, r io.Reader) (string, error)
	ProcessedPath(sessionID string) string
	Open(path string) (io.ReadCloser, int64, error)
	Remove(sessionID string) error
	List() ([]DirEntry, error)
}
