package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/and161185/rootine/internal/authz"
	"github.com/and161185/rootine/internal/errs"
	"github.com/and161185/rootine/internal/model"
	"github.com/and161185/rootine/internal/ordering"
	"github.com/and161185/rootine/internal/repository"
)

// TaskService manages tasks and keeps their positions dense.
type TaskService interface {
	// Get loads a task the caller may read.
	Get(ctx context.Context, caller model.Caller, id int64) (*model.Task, error)
	// ListByRoutine returns the routine's tasks by position, then id.
	// A routine without tasks yields an empty list without an ownership check.
	ListByRoutine(ctx context.Context, caller model.Caller, routineID int64) ([]model.Task, error)
	// Create inserts t into its routine. The routine must have been resolved
	// through RoutineService.Attach; no ownership check happens here.
	// A nil position appends.
	Create(ctx context.Context, t *model.Task, position *int) error
	Update(ctx context.Context, caller model.Caller, id int64, patch model.TaskPatch) (*model.Task, error)
	// Delete removes the task and closes the gap it leaves.
	Delete(ctx context.Context, caller model.Caller, id int64) error
	// Reorder places ids[i] at position i. ids must list exactly the
	// routine's current tasks.
	Reorder(ctx context.Context, caller model.Caller, routineID int64, ids []int64) error
	// ResetRecurring clears completion of routine and habit tasks.
	ResetRecurring(ctx context.Context) (int64, error)
}

type TaskServiceImpl struct {
	tasks    repository.TaskRepository
	routines repository.RoutineRepository
	guard    *authz.Guard
}

// NewTaskService constructs TaskService.
func NewTaskService(tasks repository.TaskRepository, routines repository.RoutineRepository, guard *authz.Guard) *TaskServiceImpl {
	return &TaskServiceImpl{tasks: tasks, routines: routines, guard: guard}
}

// ownerOf follows Task -> Routine -> User. A task whose routine is gone is a broken chain.
func (s *TaskServiceImpl) ownerOf(ctx context.Context, routineID int64) (int64, error) {
	r, err := s.routines.GetByID(ctx, routineID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return 0, fmt.Errorf("%w: routine %d: %w", errs.ErrInconsistent, routineID, err)
		}
		return 0, err
	}
	return r.UserID, nil
}

// load fetches a task and checks caller against its owner.
func (s *TaskServiceImpl) load(ctx context.Context, caller model.Caller, id int64) (*model.Task, error) {
	t, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	owner, err := s.ownerOf(ctx, t.RoutineID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.VerifyOwnershipOrAdmin(caller, owner); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TaskServiceImpl) Get(ctx context.Context, caller model.Caller, id int64) (*model.Task, error) {
	return s.load(ctx, caller, id)
}

func (s *TaskServiceImpl) ListByRoutine(ctx context.Context, caller model.Caller, routineID int64) ([]model.Task, error) {
	list, err := s.tasks.ListByRoutine(ctx, routineID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}
	owner, err := s.ownerOf(ctx, list[0].RoutineID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.VerifyOwnershipOrAdmin(caller, owner); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *TaskServiceImpl) Create(ctx context.Context, t *model.Task, position *int) error {
	if t.RoutineID <= 0 {
		return fmt.Errorf("%w: task has no routine", errs.ErrInvalidArgument)
	}
	if err := prepareTask(t); err != nil {
		return err
	}
	return s.tasks.Create(ctx, t, position)
}

func (s *TaskServiceImpl) Update(ctx context.Context, caller model.Caller, id int64, patch model.TaskPatch) (*model.Task, error) {
	t, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(t)
	if err := validateTask(t); err != nil {
		return nil, err
	}
	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TaskServiceImpl) Delete(ctx context.Context, caller model.Caller, id int64) error {
	if _, err := s.load(ctx, caller, id); err != nil {
		return err
	}
	return s.tasks.Delete(ctx, id)
}

func (s *TaskServiceImpl) Reorder(ctx context.Context, caller model.Caller, routineID int64, ids []int64) error {
	if routineID <= 0 {
		return fmt.Errorf("%w: routine id required", errs.ErrInvalidArgument)
	}
	if err := ordering.Validate(ids); err != nil {
		return err
	}
	r, err := s.routines.GetByID(ctx, routineID)
	if err != nil {
		return err
	}
	return s.tasks.Reorder(ctx, routineID, func(current []model.Task) ([]ordering.Move, error) {
		if len(current) == 0 {
			return nil, fmt.Errorf("%w: routine %d has no tasks", errs.ErrNotFound, routineID)
		}
		if err := s.guard.VerifyOwnershipOrAdmin(caller, r.UserID); err != nil {
			return nil, err
		}
		return ordering.Reorder(current, ids)
	})
}

func (s *TaskServiceImpl) ResetRecurring(ctx context.Context) (int64, error) {
	return s.tasks.ResetCompleted(ctx, []model.TaskType{model.TaskRoutine, model.TaskHabit})
}

// prepareTask fills defaults for a new task and validates it.
func prepareTask(t *model.Task) error {
	if t.Type == "" {
		t.Type = model.TaskOneTime
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	return validateTask(t)
}

func validateTask(t *model.Task) error {
	t.Title = strings.TrimSpace(t.Title)
	switch {
	case t.Title == "":
		return fmt.Errorf("%w: empty title", errs.ErrInvalidArgument)
	case len(t.Title) > maxTitleLen:
		return fmt.Errorf("%w: title longer than %d", errs.ErrInvalidArgument, maxTitleLen)
	case !t.Type.Valid():
		return fmt.Errorf("%w: task type %q", errs.ErrInvalidArgument, t.Type)
	case !t.Priority.Valid():
		return fmt.Errorf("%w: priority %q", errs.ErrInvalidArgument, t.Priority)
	case t.DurationMinutes != nil && *t.DurationMinutes <= 0:
		return fmt.Errorf("%w: duration must be positive", errs.ErrInvalidArgument)
	case t.StartTime != nil && (*t.StartTime < 0 || *t.StartTime >= 24*3600):
		return fmt.Errorf("%w: start time out of range", errs.ErrInvalidArgument)
	}
	return nil
}
