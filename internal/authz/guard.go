// Package authz implements the owner-or-admin rule shared by every mutation.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/rootine/internal/errs"
	"github.com/and161185/rootine/internal/model"
	"github.com/and161185/rootine/internal/repository"
)

// Guard checks ownership of resources against an explicit caller.
type Guard struct {
	users repository.UserRepository
}

// NewGuard constructs a Guard resolving callers through users.
func NewGuard(users repository.UserRepository) *Guard {
	return &Guard{users: users}
}

// CurrentUser loads the user record behind caller.
// An anonymous caller yields ErrAccessDenied; a caller without a backing row
// yields ErrNotFound wrapped with ErrInconsistent.
func (g *Guard) CurrentUser(ctx context.Context, caller model.Caller) (*model.User, error) {
	if !caller.Authenticated() {
		return nil, fmt.Errorf("%w: no authenticated identity", errs.ErrAccessDenied)
	}
	u, err := g.users.GetByID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d: %w", errs.ErrInconsistent, caller.UserID, err)
		}
		return nil, err
	}
	return u, nil
}

// VerifyOwnershipOrAdmin accepts when caller is ownerUserID or holds the admin role.
func (g *Guard) VerifyOwnershipOrAdmin(caller model.Caller, ownerUserID int64) error {
	if !caller.Authenticated() {
		return fmt.Errorf("%w: no authenticated identity", errs.ErrAccessDenied)
	}
	if caller.UserID == ownerUserID || caller.IsAdmin() {
		return nil
	}
	return errs.ErrAccessDenied
}

// RequireAdmin accepts only administrators.
func (g *Guard) RequireAdmin(caller model.Caller) error {
	if caller.Authenticated() && caller.IsAdmin() {
		return nil
	}
	return errs.ErrAccessDenied
}
