package domain

import "sort"

// Plan is the outcome of collapsing one Group: the event set the kept book ends
// up with, its recomputed totals, and the book rows to drop.
type Plan struct {
	KeepID     int64
	Events     []Event
	TotalTime  int64
	TotalPages int64
	DeleteIDs  []int64
}

// Merge collapses the events of group.MergeIDs into group.KeepID.
//
// Events sharing (page, start_time) are the same reading moment recorded under
// two fingerprints, so only one survives: the longer duration wins, and on equal
// durations the kept book's row wins, then the earliest merge id in declaration
// order. The surviving row carries the largest total_pages seen for that key.
func Merge(group Group, eventsByBook map[int64][]Event) Plan {
	type slot struct {
		event Event
		rank  int
	}
	slots := make(map[EventKey]*slot)
	order := make([]EventKey, 0)

	for rank, bookID := range group.IDs() {
		for _, ev := range eventsByBook[bookID] {
			key := ev.Key()
			cur, ok := slots[key]
			if !ok {
				slots[key] = &slot{event: ev, rank: rank}
				order = append(order, key)
				continue
			}
			pages := max(cur.event.TotalPages, ev.TotalPages)
			if ev.Duration > cur.event.Duration || (ev.Duration == cur.event.Duration && rank < cur.rank) {
				cur.event = ev
				cur.rank = rank
			}
			cur.event.TotalPages = pages
		}
	}

	plan := Plan{
		KeepID:    group.KeepID,
		Events:    make([]Event, 0, len(order)),
		DeleteIDs: append([]int64(nil), group.MergeIDs...),
	}
	for _, key := range order {
		ev := slots[key].event
		ev.BookID = group.KeepID
		plan.Events = append(plan.Events, ev)
	}
	plan.TotalTime, plan.TotalPages = Totals(plan.Events)
	sort.Slice(plan.Events, func(i, j int) bool {
		a, b := plan.Events[i], plan.Events[j]
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.Page < b.Page
	})
	return plan
}

// Totals recomputes a book's derived totals from its event set.
func Totals(events []Event) (totalTime, totalPages int64) {
	pages := make(map[int64]struct{})
	for _, ev := range events {
		totalTime += ev.Duration
		pages[ev.Page] = struct{}{}
	}
	return totalTime, int64(len(pages))
}
