// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/rootine/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides CRUD access for users.
type UserRepository interface {
	// Create inserts a new user and fills its ID and CreatedAt.
	// A taken e-mail yields errs.ErrAlreadyExists.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by numeric ID.
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetByPublicID loads a user by its public UUID.
	GetByPublicID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by e-mail.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// List returns all users ordered by ID.
	List(ctx context.Context) ([]model.User, error)
	// Update persists name, e-mail and password hash.
	Update(ctx context.Context, u *model.User) error
	// TouchLastLogin records a successful login.
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	// Delete removes a user together with its routines and tasks.
	Delete(ctx context.Context, id int64) error
}
