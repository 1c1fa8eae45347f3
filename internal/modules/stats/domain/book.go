package domain

import (
	"fmt"

	apperrors "komerge/internal/platform/errors"
)

const UnknownAuthor = "Unknown Author"

// Book is one row of the device's book table. Fingerprint is the content hash the
// device keys books by; it changes whenever the file is edited, which is how
// duplicates appear.
type Book struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Authors     string `json:"authors"`
	Series      string `json:"series,omitempty"`
	Fingerprint string `json:"md5"`
	TotalTime   int64  `json:"total_read_time"`
	TotalPages  int64  `json:"total_read_pages"`
}

// Event is one page_stat_data row: time spent on Page starting at StartTime.
// TotalPages is the book length the device recorded alongside the event.
type Event struct {
	BookID     int64
	Page       int64
	StartTime  int64
	Duration   int64
	TotalPages int64
}

type EventKey struct {
	Page      int64
	StartTime int64
}

func (e Event) Key() EventKey {
	return EventKey{Page: e.Page, StartTime: e.StartTime}
}

// Group declares that KeepID absorbs every book in MergeIDs.
type Group struct {
	KeepID   int64   `json:"keep_id"`
	MergeIDs []int64 `json:"merge_ids"`
}

// NewGroup normalizes the merge ids and validates the result.
func NewGroup(keepID int64, mergeIDs []int64) (Group, error) {
	g := Group{KeepID: keepID, MergeIDs: mergeIDs}.Normalize()
	if err := g.Validate(); err != nil {
		return Group{}, err
	}
	return g, nil
}

// Normalize drops repeated merge ids, keeping first-seen order. The result
// never shares its slice with g.
func (g Group) Normalize() Group {
	seen := make(map[int64]struct{}, len(g.MergeIDs))
	ids := make([]int64, 0, len(g.MergeIDs))
	for _, id := range g.MergeIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return Group{KeepID: g.KeepID, MergeIDs: ids}
}

func (g Group) Validate() error {
	if len(g.MergeIDs) == 0 {
		return fmt.Errorf("%w: merge ids must not be empty", apperrors.ErrConflict)
	}
	seen := make(map[int64]struct{}, len(g.MergeIDs))
	for _, id := range g.MergeIDs {
		if id == g.KeepID {
			return fmt.Errorf("%w: book %d cannot be both kept and merged", apperrors.ErrConflict, id)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: book %d listed twice", apperrors.ErrConflict, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// IDs returns the keep id followed by the merge ids.
func (g Group) IDs() []int64 {
	out := make([]int64, 0, len(g.MergeIDs)+1)
	out = append(out, g.KeepID)
	return append(out, g.MergeIDs...)
}

// Disjoint reports a conflict when a book id shows up in more than one group.
// Plans are computed from one snapshot, so overlapping groups would overwrite
// each other's events.
func Disjoint(groups []Group) error {
	owner := make(map[int64]int, len(groups))
	for i, g := range groups {
		for _, id := range g.IDs() {
			if prev, ok := owner[id]; ok && prev != i {
				return fmt.Errorf("%w: book %d already belongs to another group", apperrors.ErrConflict, id)
			}
			owner[id] = i
		}
	}
	return nil
}
