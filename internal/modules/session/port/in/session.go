package in

import (
	"context"
	"io"

	"komerge/internal/modules/session/dto"
)

type Usecase interface {
	Create(ctx context.Context, upload io.Reader) (dto.CreateOutput, error)
	ListBooks(ctx context.Context, sessionID string) (dto.BooksOutput, error)
	AddGroup(ctx context.Context, input dto.AddGroupInput) (dto.GroupsOutput, error)
	RemoveLastGroup(ctx context.Context, sessionID string) (dto.GroupsOutput, error)
	ClearGroups(ctx context.Context, sessionID string) (dto.GroupsOutput, error)
	Execute(ctx context.Context, sessionID string) (dto.ExecuteOutput, error)
	Result(ctx context.Context, sessionID string) (dto.ResultOutput, error)
	Download(ctx context.Context, sessionID string) (dto.DownloadOutput, error)
	Renew(ctx context.Context, sessionID string) (dto.RenewOutput, error)
	Info(ctx context.Context, sessionID string) (dto.InfoOutput, error)
	Cleanup(ctx context.Context, sessionID string) error
	SweepExpired(ctx context.Context) (dto.SweepOutput, error)
}
