// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied indicates the caller is neither the owner of the resource nor an admin.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidArgument indicates a malformed request (empty/duplicate reorder list,
	// non-permutation reorder, missing routine association, bad field value).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., e-mail taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInconsistent indicates broken stored state, e.g. an authenticated identity
	// without a backing user row or a task whose routine is gone.
	ErrInconsistent = errors.New("inconsistent state")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates an optional backend (e.g. the routine generator) is not configured.
	ErrUnavailable = errors.New("unavailable")
)
