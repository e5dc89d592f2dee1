package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG keeps attempt counters in the auth_limiter table, one row per attempt key.
// It follows the Redis limiter: a counter that restarts after the window and a
// lockout deadline that clears the counter when set.
type PG struct {
	q        pgxQuerier
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter over a pool or transaction.
func NewPG(q pgxQuerier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{q: q, window: window, maxFails: maxFails, blockFor: blockFor}
}

const (
	pgBlockedUntil = `SELECT blocked_until FROM auth_limiter WHERE attempt_key=$1 AND blocked_until > now()`

	pgCountFailure = `
INSERT INTO auth_limiter AS a (attempt_key, fail_count, window_start)
VALUES ($1, 1, now())
ON CONFLICT (attempt_key) DO UPDATE SET
  fail_count   = CASE WHEN now() - a.window_start > $2::interval THEN 1 ELSE a.fail_count + 1 END,
  window_start = CASE WHEN now() - a.window_start > $2::interval THEN now() ELSE a.window_start END
RETURNING fail_count`

	pgBlock = `UPDATE auth_limiter SET blocked_until = now() + $2::interval, fail_count = 0, window_start = now() WHERE attempt_key=$1`

	pgClear = `DELETE FROM auth_limiter WHERE attempt_key=$1`
)

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	var until time.Time
	err := l.q.QueryRow(ctx, pgBlockedUntil, attemptKey(email, ipHash)).Scan(&until)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	return false, time.Until(until), nil
}

// Success drops the counter and any lockout.
func (l *PG) Success(ctx context.Context, email string, ipHash []byte) error {
	_, err := l.q.Exec(ctx, pgClear, attemptKey(email, ipHash))
	return err
}

// Failure counts an attempt and locks the pair out once the threshold is reached.
func (l *PG) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	key := attemptKey(email, ipHash)
	var n int
	if err := l.q.QueryRow(ctx, pgCountFailure, key, l.window).Scan(&n); err != nil {
		return false, 0, err
	}
	if n < l.maxFails {
		return false, 0, nil
	}
	if _, err := l.q.Exec(ctx, pgBlock, key, l.blockFor); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
