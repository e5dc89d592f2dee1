package postgres

import (
	"context"
	"errors"

	"github.com/and161185/rootine/internal/errs"
	"github.com/and161185/rootine/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// RoutineRepo implements RoutineRepository using PostgreSQL.
// The partial unique index routines_one_active_per_user backs the
// single-active-routine rule at the storage level.
type RoutineRepo struct{ db *DB }

// NewRoutineRepo constructs a routine repository.
func NewRoutineRepo(db *DB) *RoutineRepo { return &RoutineRepo{db: db} }

const routineCols = `id, user_id, title, theme, detail_level, is_active, created_at`

const demoteOthers = `UPDATE routines SET is_active=false WHERE user_id=$1 AND is_active AND id<>$2`

// lockOwner serializes every transaction that sets is_active for userID on
// the owner's row, so a demote never runs on a snapshot missing a concurrent promote.
func lockOwner(ctx context.Context, tx pgx.Tx, userID int64) error {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id=$1 FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrNotFound
	}
	return err
}

// Create inserts the routine and its inline tasks atomically.
func (r *RoutineRepo) Create(ctx context.Context, rt *model.Routine) error {
	const ins = `
INSERT INTO routines (user_id, title, theme, detail_level, is_active)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if rt.IsActive {
			if err := lockOwner(ctx, tx, rt.UserID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, demoteOthers, rt.UserID, int64(0)); err != nil {
				return err
			}
		}
		err := tx.QueryRow(ctx, ins, rt.UserID, rt.Title, textOrNull(rt.Theme), string(rt.DetailLevel), rt.IsActive).
			Scan(&rt.ID, &rt.CreatedAt)
		if isForeignKeyViolation(err) {
			return errs.ErrNotFound
		}
		if err != nil {
			return err
		}
		for i := range rt.Tasks {
			rt.Tasks[i].RoutineID = rt.ID
			rt.Tasks[i].Position = i
			if err := insertTask(ctx, tx, &rt.Tasks[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID loads a routine.
func (r *RoutineRepo) GetByID(ctx context.Context, id int64) (*model.Routine, error) {
	rt, err := scanRoutine(r.db.Pool.QueryRow(ctx, `SELECT `+routineCols+` FROM routines WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	return rt, err
}

// List returns every routine.
func (r *RoutineRepo) List(ctx context.Context) ([]model.Routine, error) {
	return r.list(ctx, `SELECT `+routineCols+` FROM routines ORDER BY id`)
}

// ListByUser returns the routines owned by userID.
func (r *RoutineRepo) ListByUser(ctx context.Context, userID int64) ([]model.Routine, error) {
	return r.list(ctx, `SELECT `+routineCols+` FROM routines WHERE user_id=$1 ORDER BY id`, userID)
}

func (r *RoutineRepo) list(ctx context.Context, q string, args ...any) ([]model.Routine, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Routine
	for rows.Next() {
		rt, err := scanRoutine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rt)
	}
	return out, rows.Err()
}

// Update persists mutable fields; an active flag demotes the owner's other routines first.
func (r *RoutineRepo) Update(ctx context.Context, rt *model.Routine) error {
	const upd = `UPDATE routines SET title=$2, theme=$3, detail_level=$4, is_active=$5 WHERE id=$1`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if rt.IsActive {
			if err := lockOwner(ctx, tx, rt.UserID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, demoteOthers, rt.UserID, rt.ID); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, upd, rt.ID, rt.Title, textOrNull(rt.Theme), string(rt.DetailLevel), rt.IsActive)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

// Activate locks the owner, bulk-demotes the user's active routines and
// promotes id in one transaction.
func (r *RoutineRepo) Activate(ctx context.Context, userID, id int64) error {
	const promote = `UPDATE routines SET is_active=true WHERE id=$2 AND user_id=$1`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, demoteOthers, userID, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, promote, userID, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

// Delete removes the routine; its tasks go with it via ON DELETE CASCADE.
func (r *RoutineRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM routines WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanRoutine(row scanner) (*model.Routine, error) {
	var (
		rt    model.Routine
		theme pgtype.Text
		level string
	)
	if err := row.Scan(&rt.ID, &rt.UserID, &rt.Title, &theme, &level, &rt.IsActive, &rt.CreatedAt); err != nil {
		return nil, err
	}
	rt.Theme = textPtr(theme)
	rt.DetailLevel = model.DetailLevel(level)
	return &rt, nil
}

func textOrNull(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}
