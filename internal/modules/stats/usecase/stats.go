package usecase

import (
	"context"

	"komerge/internal/modules/stats/domain"
	"komerge/internal/modules/stats/dto"
	statsin "komerge/internal/modules/stats/port/in"
	"komerge/internal/modules/stats/service"
)

type Interactor struct {
	svc *service.MergeService
}

func NewInteractor(svc *service.MergeService) statsin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) Validate(ctx context.Context, path string) error {
	return i.svc.Validate(ctx, path)
}

func (i *Interactor) ListBooks(ctx context.Context, path string) ([]dto.BookOutput, error) {
	books, err := i.svc.ListBooks(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make([]dto.BookOutput, 0, len(books))
	for _, b := range books {
		out = append(out, dto.BookOutput{
			ID:          b.ID,
			Title:       b.Title,
			Authors:     b.Authors,
			Series:      b.Series,
			Fingerprint: b.Fingerprint,
			TotalTime:   b.TotalTime,
			TotalPages:  b.TotalPages,
		})
	}
	return out, nil
}

func (i *Interactor) BookIDs(ctx context.Context, path string) ([]int64, error) {
	return i.svc.BookIDs(ctx, path)
}

func (i *Interactor) Execute(ctx context.Context, input dto.ExecuteInput) (dto.ExecuteOutput, error) {
	groups := make([]domain.Group, 0, len(input.Groups))
	for _, gi := range input.Groups {
		g, err := domain.NewGroup(gi.KeepID, gi.MergeIDs)
		if err != nil {
			return dto.ExecuteOutput{}, err
		}
		groups = append(groups, g)
	}
	plans, err := i.svc.Execute(ctx, input.SourcePath, input.TargetPath, groups)
	if err != nil {
		return dto.ExecuteOutput{}, err
	}
	out := dto.ExecuteOutput{TargetPath: input.TargetPath, Groups: make([]dto.GroupSummary, 0, len(plans))}
	for _, p := range plans {
		out.Groups = append(out.Groups, dto.GroupSummary{
			KeepID:     p.KeepID,
			MergedIDs:  p.DeleteIDs,
			Events:     len(p.Events),
			TotalTime:  p.TotalTime,
			TotalPages: p.TotalPages,
		})
	}
	return out, nil
}
