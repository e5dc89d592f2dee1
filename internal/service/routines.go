package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/and161185/rootine/internal/authz"
	"github.com/and161185/rootine/internal/errs"
	"github.com/and161185/rootine/internal/model"
	"github.com/and161185/rootine/internal/repository"
)

const maxTitleLen = 150

// RoutineService manages routines and the single-active-routine rule.
type RoutineService interface {
	// Get loads a routine. No ownership check.
	Get(ctx context.Context, id int64) (*model.Routine, error)
	// ListAll returns every routine. No ownership check.
	ListAll(ctx context.Context) ([]model.Routine, error)
	// ListByUser returns the routines of userID. No ownership check.
	ListByUser(ctx context.Context, userID int64) ([]model.Routine, error)
	// Create persists r with any inline tasks. r.UserID must already be set
	// to the owner resolved by the caller.
	Create(ctx context.Context, r *model.Routine) error
	Update(ctx context.Context, caller model.Caller, id int64, patch model.RoutinePatch) (*model.Routine, error)
	// Delete removes the routine and its tasks.
	Delete(ctx context.Context, caller model.Caller, id int64) error
	// Activate makes id the owner's only active routine.
	Activate(ctx context.Context, caller model.Caller, id int64) (*model.Routine, error)
	// Attach resolves a routine that new tasks will be added to and checks
	// that caller may write to it.
	Attach(ctx context.Context, caller model.Caller, routineID int64) (*model.Routine, error)
}

type RoutineServiceImpl struct {
	routines repository.RoutineRepository
	guard    *authz.Guard
}

// NewRoutineService constructs RoutineService.
func NewRoutineService(routines repository.RoutineRepository, guard *authz.Guard) *RoutineServiceImpl {
	return &RoutineServiceImpl{routines: routines, guard: guard}
}

func (s *RoutineServiceImpl) Get(ctx context.Context, id int64) (*model.Routine, error) {
	return s.routines.GetByID(ctx, id)
}

func (s *RoutineServiceImpl) ListAll(ctx context.Context) ([]model.Routine, error) {
	return s.routines.List(ctx)
}

func (s *RoutineServiceImpl) ListByUser(ctx context.Context, userID int64) ([]model.Routine, error) {
	return s.routines.ListByUser(ctx, userID)
}

func (s *RoutineServiceImpl) Create(ctx context.Context, r *model.Routine) error {
	if r.UserID <= 0 {
		return fmt.Errorf("%w: routine has no owner", errs.ErrInvalidArgument)
	}
	if r.DetailLevel == "" {
		r.DetailLevel = model.DetailMedium
	}
	if err := validateRoutine(r); err != nil {
		return err
	}
	for i := range r.Tasks {
		if err := prepareTask(&r.Tasks[i]); err != nil {
			return fmt.Errorf("task %d: %w", i, err)
		}
	}
	return s.routines.Create(ctx, r)
}

func (s *RoutineServiceImpl) Update(ctx context.Context, caller model.Caller, id int64, patch model.RoutinePatch) (*model.Routine, error) {
	r, err := s.routines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.VerifyOwnershipOrAdmin(caller, r.UserID); err != nil {
		return nil, err
	}
	patch.Apply(r)
	if err := validateRoutine(r); err != nil {
		return nil, err
	}
	if err := s.routines.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *RoutineServiceImpl) Delete(ctx context.Context, caller model.Caller, id int64) error {
	r, err := s.routines.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.guard.VerifyOwnershipOrAdmin(caller, r.UserID); err != nil {
		return err
	}
	return s.routines.Delete(ctx, id)
}

func (s *RoutineServiceImpl) Activate(ctx context.Context, caller model.Caller, id int64) (*model.Routine, error) {
	r, err := s.routines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.VerifyOwnershipOrAdmin(caller, r.UserID); err != nil {
		return nil, err
	}
	if err := s.routines.Activate(ctx, r.UserID, id); err != nil {
		return nil, err
	}
	r.IsActive = true
	return r, nil
}

func (s *RoutineServiceImpl) Attach(ctx context.Context, caller model.Caller, routineID int64) (*model.Routine, error) {
	if routineID <= 0 {
		return nil, fmt.Errorf("%w: routine id required", errs.ErrInvalidArgument)
	}
	r, err := s.routines.GetByID(ctx, routineID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.VerifyOwnershipOrAdmin(caller, r.UserID); err != nil {
		return nil, err
	}
	return r, nil
}

func validateRoutine(r *model.Routine) error {
	r.Title = strings.TrimSpace(r.Title)
	switch {
	case r.Title == "":
		return fmt.Errorf("%w: empty title", errs.ErrInvalidArgument)
	case len(r.Title) > maxTitleLen:
		return fmt.Errorf("%w: title longer than %d", errs.ErrInvalidArgument, maxTitleLen)
	case !r.DetailLevel.Valid():
		return fmt.Errorf("%w: detail level %q", errs.ErrInvalidArgument, r.DetailLevel)
	}
	return nil
}
