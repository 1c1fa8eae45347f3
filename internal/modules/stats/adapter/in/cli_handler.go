package in

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"komerge/internal/modules/stats/dto"
	statsin "komerge/internal/modules/stats/port/in"
	apperrors "komerge/internal/platform/errors"
)

type CLIHandler struct {
	usecase statsin.Usecase
}

func NewCLIHandler(usecase statsin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Validate(ctx context.Context, path string) error {
	return h.usecase.Validate(ctx, path)
}

func (h CLIHandler) ListBooks(ctx context.Context, path string) ([]dto.BookOutput, error) {
	if err := h.usecase.Validate(ctx, path); err != nil {
		return nil, err
	}
	return h.usecase.ListBooks(ctx, path)
}

// Merge runs the groups against a copy of src written to dst. Groups use the
// "keep:id,id" notation of the --group flag.
func (h CLIHandler) Merge(ctx context.Context, src, dst string, args []string) (dto.ExecuteOutput, error) {
	if err := h.usecase.Validate(ctx, src); err != nil {
		return dto.ExecuteOutput{}, err
	}
	groups := make([]dto.GroupInput, 0, len(args))
	for _, arg := range args {
		g, err := ParseGroup(arg)
		if err != nil {
			return dto.ExecuteOutput{}, err
		}
		groups = append(groups, g)
	}
	return h.usecase.Execute(ctx, dto.ExecuteInput{SourcePath: src, TargetPath: dst, Groups: groups})
}

func ParseGroup(arg string) (dto.GroupInput, error) {
	keepRaw, mergeRaw, ok := strings.Cut(strings.TrimSpace(arg), ":")
	if !ok {
		return dto.GroupInput{}, fmt.Errorf("%w: group %q must look like keep:id,id", apperrors.ErrInvalidInput, arg)
	}
	keep, err := strconv.ParseInt(strings.TrimSpace(keepRaw), 10, 64)
	if err != nil {
		return dto.GroupInput{}, fmt.Errorf("%w: keep id in %q: %v", apperrors.ErrInvalidInput, arg, err)
	}
	var ids []int64
	for _, raw := range strings.Split(mergeRaw, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return dto.GroupInput{}, fmt.Errorf("%w: merge id in %q: %v", apperrors.ErrInvalidInput, arg, err)
		}
		ids = append(ids, id)
	}
	return dto.GroupInput{KeepID: keep, MergeIDs: ids}, nil
}
