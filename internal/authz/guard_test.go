package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/rootine/internal/errs"
	"github.com/and161185/rootine/internal/model"
	"github.com/and161185/rootine/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	byID   map[int64]*model.User
	getErr error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(context.Context, *model.User) error { return nil }
func (f *fakeUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}
func (f *fakeUsers) GetByPublicID(context.Context, uuid.UUID) (*model.User, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) GetByEmail(context.Context, string) (*model.User, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) List(context.Context) ([]model.User, error)             { return nil, nil }
func (f *fakeUsers) Update(context.Context, *model.User) error              { return nil }
func (f *fakeUsers) TouchLastLogin(context.Context, int64, time.Time) error { return nil }
func (f *fakeUsers) Delete(context.Context, int64) error                    { return nil }

func TestVerifyOwnershipOrAdmin(t *testing.T) {
	t.Parallel()
	g := NewGuard(&fakeUsers{})

	owner := model.Caller{UserID: 1, Roles: []model.Role{model.RoleUser}}
	other := model.Caller{UserID: 2, Roles: []model.Role{model.RoleUser}}
	admin := model.Caller{UserID: 3, Roles: []model.Role{model.RoleUser, model.RoleAdmin}}

	require.NoError(t, g.VerifyOwnershipOrAdmin(owner, 1))
	require.NoError(t, g.VerifyOwnershipOrAdmin(admin, 1))
	require.ErrorIs(t, g.VerifyOwnershipOrAdmin(other, 1), errs.ErrAccessDenied)
	require.ErrorIs(t, g.VerifyOwnershipOrAdmin(model.Caller{}, 0), errs.ErrAccessDenied)
	require.ErrorIs(t, g.VerifyOwnershipOrAdmin(model.Caller{Roles: []model.Role{model.RoleAdmin}}, 1), errs.ErrAccessDenied)
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()
	g := NewGuard(&fakeUsers{})

	require.NoError(t, g.RequireAdmin(model.Caller{UserID: 9, Roles: []model.Role{model.RoleAdmin}}))
	require.ErrorIs(t, g.RequireAdmin(model.Caller{UserID: 9}), errs.ErrAccessDenied)
	require.ErrorIs(t, g.RequireAdmin(model.Caller{}), errs.ErrAccessDenied)
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byID: map[int64]*model.User{7: {ID: 7, Email: "a@b.c"}}}
	g := NewGuard(users)
	ctx := context.Background()

	u, err := g.CurrentUser(ctx, model.Caller{UserID: 7})
	require.NoError(t, err)
	require.Equal(t, "a@b.c", u.Email)

	_, err = g.CurrentUser(ctx, model.Caller{})
	require.ErrorIs(t, err, errs.ErrAccessDenied)

	_, err = g.CurrentUser(ctx, model.Caller{UserID: 8})
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.ErrorIs(t, err, errs.ErrInconsistent)

	users.getErr = errors.New("db down")
	_, err = g.CurrentUser(ctx, model.Caller{UserID: 7})
	require.EqualError(t, err, "db down")
}
