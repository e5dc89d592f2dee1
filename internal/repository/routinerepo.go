package repository

import (
	"context"

	"github.com/and161185/rootine/internal/model"
)

// RoutineRepository stores routines. Every write keeps at most one active
// routine per user at any committed state.
type RoutineRepository interface {
	// Create inserts r (and any r.Tasks at positions 0..n-1) in one transaction
	// and fills generated IDs and timestamps. An active r demotes the owner's other routines.
	Create(ctx context.Context, r *model.Routine) error
	// GetByID loads a routine by ID.
	GetByID(ctx context.Context, id int64) (*model.Routine, error)
	// List returns all routines ordered by ID.
	List(ctx context.Context) ([]model.Routine, error)
	// ListByUser returns the routines of one user ordered by ID.
	ListByUser(ctx context.Context, userID int64) ([]model.Routine, error)
	// Update persists title, theme, detail level and the active flag.
	// Setting the flag demotes the owner's other routines in the same transaction.
	Update(ctx context.Context, r *model.Routine) error
	// Activate demotes every active routine of userID and marks id active, atomically.
	Activate(ctx context.Context, userID, id int64) error
	// Delete removes a routine and its tasks.
	Delete(ctx context.Context, id int64) error
}
