package in

import (
	"context"

	"komerge/internal/modules/stats/dto"
)

type Usecase interface {
	Validate(ctx context.Context, path string) error
	ListBooks(ctx context.Context, path string) ([]dto.BookOutput, error)
	BookIDs(ctx context.Context, path string) ([]int64, error)
	Execute(ctx context.Context, input dto.ExecuteInput) (dto.ExecuteOutput, error)
}
