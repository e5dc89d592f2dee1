package repository

import (
	"context"

	"github.com/and161185/rootine/internal/model"
	"github.com/and161185/rootine/internal/ordering"
)

// PlanFunc inspects the locked tasks of a routine and returns the position
// moves to persist. Returning an error aborts the transaction.
type PlanFunc func(current []model.Task) ([]ordering.Move, error)

// TaskRepository stores tasks. Writes that touch positions lock the routine's
// task rows and run in one transaction.
type TaskRepository interface {
	// Create inserts t. A nil position appends; an explicit one is clamped
	// to [0, n] and later tasks shift down.
	Create(ctx context.Context, t *model.Task, position *int) error
	// GetByID loads a task by ID.
	GetByID(ctx context.Context, id int64) (*model.Task, error)
	// ListByRoutine returns tasks ordered by position, then ID.
	ListByRoutine(ctx context.Context, routineID int64) ([]model.Task, error)
	// Update persists every field except routine and position.
	Update(ctx context.Context, t *model.Task) error
	// Delete removes a task and compacts the positions of the rest.
	Delete(ctx context.Context, id int64) error
	// Reorder locks the routine's tasks, asks plan for moves and applies them.
	Reorder(ctx context.Context, routineID int64, plan PlanFunc) error
	// ResetCompleted clears completion on tasks of the given types and
	// returns the number of rows changed.
	ResetCompleted(ctx context.Context, types []model.TaskType) (int64, error)
}
