package domain

import (
	"fmt"

	statsdomain "komerge/internal/modules/stats/domain"
	apperrors "komerge/internal/platform/errors"
)

// Group asks for every book in MergeIDs to be folded into KeepID.
type Group = statsdomain.Group

func cloneGroup(g Group) Group {
	return Group{KeepID: g.KeepID, MergeIDs: append([]int64(nil), g.MergeIDs...)}
}

// Registry is the ordered list of merge groups declared for one session.
// A book id appears in at most one group, either as keep or as merge target.
type Registry struct {
	groups []Group
}

// Add validates g against the session's known book ids and the groups already
// declared, then appends it. Repeated merge ids collapse to their first occurrence.
func (r *Registry) Add(g Group, known map[int64]struct{}) (Group, error) {
	g = g.Normalize()
	if len(g.MergeIDs) == 0 {
		return Group{}, fmt.Errorf("%w: merge ids must not be empty", apperrors.ErrConflict)
	}
	for _, id := range g.IDs() {
		if _, ok := known[id]; !ok {
			return Group{}, fmt.Errorf("%w: book %d", apperrors.ErrUnknownBook, id)
		}
	}
	if err := g.Validate(); err != nil {
		return Group{}, err
	}
	if err := statsdomain.Disjoint(append(r.Groups(), g)); err != nil {
		return Group{}, err
	}
	r.groups = append(r.groups, g)
	return cloneGroup(g), nil
}

func (r *Registry) RemoveLast() (Group, error) {
	if len(r.groups) == 0 {
		return Group{}, apperrors.ErrEmpty
	}
	last := r.groups[len(r.groups)-1]
	r.groups = r.groups[:len(r.groups)-1]
	return last, nil
}

func (r *Registry) Clear() {
	r.groups = nil
}

func (r *Registry) Len() int {
	return len(r.groups)
}

// Groups returns a deep copy safe to use after the session lock is released.
func (r *Registry) Groups() []Group {
	out := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, cloneGroup(g))
	}
	return out
}
