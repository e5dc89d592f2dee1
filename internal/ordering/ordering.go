// Package ordering keeps task positions dense: for a routine with n tasks the
// positions are exactly 0..n-1. Functions here are pure; callers persist the
// returned moves inside one transaction.
package ordering

import (
	"fmt"
	"sort"

	"github.com/and161185/rootine/internal/errs"
	"github.com/and161185/rootine/internal/model"
)

// Move assigns a new position to a task.
type Move struct {
	ID       int64
	Position int
}

// Sequence returns task ids in display order: position ascending, id ascending.
func Sequence(tasks []model.Task) []int64 {
	sorted := make([]model.Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Position != sorted[j].Position {
			return sorted[i].Position < sorted[j].Position
		}
		return sorted[i].ID < sorted[j].ID
	})
	ids := make([]int64, len(sorted))
	for i, t := range sorted {
		ids[i] = t.ID
	}
	return ids
}

// Validate checks a requested order without looking at storage:
// the list must be non-empty and free of duplicates.
func Validate(ids []int64) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: empty task id list", errs.ErrInvalidArgument)
	}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	if len(seen) != len(ids) {
		return fmt.Errorf("%w: duplicate task ids in order", errs.ErrInvalidArgument)
	}
	return nil
}

// Reorder returns the moves that place requested[i] at position i.
// requested must be a permutation of exactly the ids in current.
func Reorder(current []model.Task, requested []int64) ([]Move, error) {
	if err := Validate(requested); err != nil {
		return nil, err
	}
	have := make(map[int64]int, len(current))
	for _, t := range current {
		have[t.ID] = t.Position
	}
	if len(have) != len(requested) {
		return nil, fmt.Errorf("%w: order lists %d tasks, routine has %d",
			errs.ErrInvalidArgument, len(requested), len(have))
	}
	for _, id := range requested {
		if _, ok := have[id]; !ok {
			return nil, fmt.Errorf("%w: task %d does not belong to routine", errs.ErrInvalidArgument, id)
		}
	}
	return assign(requested, have, 0, 0), nil
}

// Compact returns the moves that close any gaps in current, keeping display order.
func Compact(current []model.Task) []Move {
	return assign(Sequence(current), positions(current), 0, 0)
}

// InsertAt picks the slot for a new task and returns the moves that open it.
// A nil or out-of-range at is clamped: nil and anything past the end append.
func InsertAt(current []model.Task, at *int) (int, []Move) {
	n := len(current)
	slot := n
	if at != nil && *at < n {
		slot = max(*at, 0)
	}
	return slot, assign(Sequence(current), positions(current), slot, 1)
}

func positions(tasks []model.Task) map[int64]int {
	m := make(map[int64]int, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t.Position
	}
	return m
}

// assign gives order[i] position i, shifted by shift for i >= from,
// and reports only rows whose position changes.
func assign(order []int64, cur map[int64]int, from, shift int) []Move {
	var moves []Move
	for i, id := range order {
		want := i
		if shift != 0 && i >= from {
			want = i + shift
		}
		if cur[id] != want {
			moves = append(moves, Move{ID: id, Position: want})
		}
	}
	return moves
}
