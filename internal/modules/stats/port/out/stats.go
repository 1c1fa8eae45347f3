package out

import (
	"context"

	"komerge/internal/modules/stats/domain"
)

// Database is a narrow view over one statistics database file.
type Database interface {
	Validate(ctx context.Context) error
	ListBooks(ctx context.Context) ([]domain.Book, error)
	BookIDs(ctx context.Context) ([]int64, error)
	Events(ctx context.Context, bookIDs []int64) (map[int64][]domain.Event, error)
	// Apply writes every plan in one transaction; on error nothing is committed.
	Apply(ctx context.Context, plans []domain.Plan) error
	Close() error
}

type Opener interface {
	Open(ctx context.Context, path string) (Database, error)
}
