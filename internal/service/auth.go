// Package service contains the application services: users, routines and tasks.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/rootine/internal/authz"
	pkgcrypto "github.com/and161185/rootine/internal/crypto"
	"github.com/and161185/rootine/internal/errs"
	"github.com/and161185/rootine/internal/limiter"
	"github.com/and161185/rootine/internal/model"
	"github.com/and161185/rootine/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// UserService defines registration, authentication and account management.
type UserService interface {
	// Register creates a new user with secure password hashing.
	Register(ctx context.Context, email, name, password string) (*model.User, error)
	// Login applies rate-limiting and authenticates the user.
	Login(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error)
	// Me returns the account behind caller.
	Me(ctx context.Context, caller model.Caller) (*model.User, error)
	Get(ctx context.Context, caller model.Caller, id int64) (*model.User, error)
	Update(ctx context.Context, caller model.Caller, id int64, patch model.UserPatch) (*model.User, error)
	// Delete removes the account with all its routines and tasks.
	Delete(ctx context.Context, caller model.Caller, id int64) error
	// List returns every account. Admin only.
	List(ctx context.Context, caller model.Caller) ([]model.User, error)
}

// Claims is the JWT payload issued at login.
type Claims struct {
	UserID int64        `json:"uid"`
	Roles  []model.Role `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Caller returns the identity carried by the token.
func (c *Claims) Caller() model.Caller {
	return model.Caller{UserID: c.UserID, Roles: c.Roles}
}

type UserServiceImpl struct {
	users     repository.UserRepository
	guard     *authz.Guard
	lim       limiter.Limiter
	signKey   []byte
	accessTTL time.Duration
	admins    map[string]struct{}
}

// NewUserService constructs UserService with required dependencies.
// Accounts registered with an e-mail from adminEmails receive the admin role.
func NewUserService(users repository.UserRepository, guard *authz.Guard, lim limiter.Limiter,
	signKey []byte, accessTTL time.Duration, adminEmails []string) *UserServiceImpl {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &UserServiceImpl{users: users, guard: guard, lim: lim, signKey: signKey, accessTTL: accessTTL, admins: admins}
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func validEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t")
}

// Register creates a new user record.
func (s *UserServiceImpl) Register(ctx context.Context, email, name, password string) (*model.User, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || name == "" || password == "" {
		return nil, fmt.Errorf("%w: empty email/name/password", errs.ErrInvalidArgument)
	}
	if !validEmail(email) {
		return nil, fmt.Errorf("%w: bad email", errs.ErrInvalidArgument)
	}
	pid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	hash, err := pkgcrypto.Hash(password)
	if err != nil {
		return nil, err
	}
	roles := []model.Role{model.RoleUser}
	if _, ok := s.admins[email]; ok {
		roles = append(roles, model.RoleAdmin)
	}
	u := &model.User{PublicID: pid, Email: email, Name: name, PwdHash: hash, Roles: roles}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login authenticates with rate limiting by (email, ip).
func (s *UserServiceImpl) Login(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error) {
	email = normalizeEmail(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, model.User{}, err
	}
	if err != nil || !passwordMatches(password, u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown e-mail and wrong password look the same
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, email, ipHash)

	now := time.Now().UTC()
	if err := s.users.TouchLastLogin(ctx, u.ID, now); err != nil {
		return model.Tokens{}, model.User{}, err
	}
	u.LastLogin = &now

	access, exp, err := s.issueAccessToken(u, now)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, *u, nil
}

func passwordMatches(password, encoded string) bool {
	ok, err := pkgcrypto.Verify(password, encoded)
	return err == nil && ok
}

// issueAccessToken creates a signed HS256 JWT for u.
func (s *UserServiceImpl) issueAccessToken(u *model.User, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.accessTTL)
	claims := Claims{
		UserID: u.ID,
		Roles:  u.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.PublicID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

func (s *UserServiceImpl) Me(ctx context.Context, caller model.Caller) (*model.User, error) {
	return s.guard.CurrentUser(ctx, caller)
}

func (s *UserServiceImpl) Get(ctx context.Context, caller model.Caller, id int64) (*model.User, error) {
	if err := s.guard.VerifyOwnershipOrAdmin(caller, id); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, id)
}

func (s *UserServiceImpl) Update(ctx context.Context, caller model.Caller, id int64, patch model.UserPatch) (*model.User, error) {
	if err := s.guard.VerifyOwnershipOrAdmin(caller, id); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty name", errs.ErrInvalidArgument)
		}
		u.Name = name
	}
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		if !validEmail(email) {
			return nil, fmt.Errorf("%w: bad email", errs.ErrInvalidArgument)
		}
		u.Email = email
	}
	if patch.Password != nil {
		if *patch.Password == "" {
			return nil, fmt.Errorf("%w: empty password", errs.ErrInvalidArgument)
		}
		if u.PwdHash, err = pkgcrypto.Hash(*patch.Password); err != nil {
			return nil, err
		}
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserServiceImpl) Delete(ctx context.Context, caller model.Caller, id int64) error {
	if err := s.guard.VerifyOwnershipOrAdmin(caller, id); err != nil {
		return err
	}
	return s.users.Delete(ctx, id)
}

func (s *UserServiceImpl) List(ctx context.Context, caller model.Caller) ([]model.User, error) {
	if err := s.guard.RequireAdmin(caller); err != nil {
		return nil, err
	}
	return s.users.List(ctx)
}
