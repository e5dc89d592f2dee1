package postgres

import (
	"context"
	"errors"

	"github.com/and161185/rootine/internal/errs"
	"github.com/and161185/rootine/internal/model"
	"github.com/and161185/rootine/internal/ordering"
	"github.com/and161185/rootine/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// TaskRepo implements TaskRepository using PostgreSQL.
// Position writes lock the parent routine row first, which serializes
// inserts, deletes and reorders of one routine.
type TaskRepo struct{ db *DB }

// NewTaskRepo constructs a task repository.
func NewTaskRepo(db *DB) *TaskRepo { return &TaskRepo{db: db} }

const taskCols = `id, routine_id, title, description, type, start_time, duration_minutes, priority, is_completed, position, created_at`

// Create inserts a task at the requested slot, shifting later tasks.
func (r *TaskRepo) Create(ctx context.Context, t *model.Task, position *int) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockRoutine(ctx, tx, t.RoutineID); err != nil {
			return err
		}
		cur, err := lockPositions(ctx, tx, t.RoutineID)
		if err != nil {
			return err
		}
		slot, moves := ordering.InsertAt(cur, position)
		if err := applyMoves(ctx, tx, moves); err != nil {
			return err
		}
		t.Position = slot
		return insertTask(ctx, tx, t)
	})
}

// GetByID loads a task.
func (r *TaskRepo) GetByID(ctx context.Context, id int64) (*model.Task, error) {
	t, err := scanTask(r.db.Pool.QueryRow(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	return t, err
}

// ListByRoutine returns the routine's tasks in display order.
func (r *TaskRepo) ListByRoutine(ctx context.Context, routineID int64) ([]model.Task, error) {
	const q = `SELECT ` + taskCols + ` FROM tasks WHERE routine_id=$1 ORDER BY position ASC, id ASC`
	rows, err := r.db.Pool.Query(ctx, q, routineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Update persists the task's content fields.
func (r *TaskRepo) Update(ctx context.Context, t *model.Task) error {
	const q = `
UPDATE tasks
SET title=$2, description=$3, type=$4, start_time=$5, duration_minutes=$6, priority=$7, is_completed=$8
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, t.ID, t.Title, textOrNull(t.Description), string(t.Type),
		timeOrNull(t.StartTime), int4OrNull(t.DurationMinutes), string(t.Priority), t.IsCompleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes the task and closes the gap it leaves.
func (r *TaskRepo) Delete(ctx context.Context, id int64) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		var routineID int64
		if err := tx.QueryRow(ctx, `SELECT routine_id FROM tasks WHERE id=$1`, id).Scan(&routineID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if err := lockRoutine(ctx, tx, routineID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id=$1`, id); err != nil {
			return err
		}
		cur, err := lockPositions(ctx, tx, routineID)
		if err != nil {
			return err
		}
		return applyMoves(ctx, tx, ordering.Compact(cur))
	})
}

// Reorder applies the moves plan computes from the locked task set.
func (r *TaskRepo) Reorder(ctx context.Context, routineID int64, plan repository.PlanFunc) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockRoutine(ctx, tx, routineID); err != nil {
			return err
		}
		cur, err := lockPositions(ctx, tx, routineID)
		if err != nil {
			return err
		}
		moves, err := plan(cur)
		if err != nil {
			return err
		}
		return applyMoves(ctx, tx, moves)
	})
}

// ResetCompleted clears is_completed for tasks whose type is listed.
func (r *TaskRepo) ResetCompleted(ctx context.Context, types []model.TaskType) (int64, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	tag, err := r.db.Pool.Exec(ctx, `UPDATE tasks SET is_completed=false WHERE is_completed AND type = ANY($1)`, names)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func lockRoutine(ctx context.Context, q querier, routineID int64) error {
	var id int64
	err := q.QueryRow(ctx, `SELECT id FROM routines WHERE id=$1 FOR UPDATE`, routineID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrNotFound
	}
	return err
}

// lockPositions returns the routine's tasks with only ID and Position set.
func lockPositions(ctx context.Context, q querier, routineID int64) ([]model.Task, error) {
	const sel = `SELECT id, position FROM tasks WHERE routine_id=$1 ORDER BY position, id FOR UPDATE`
	rows, err := q.Query(ctx, sel, routineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		var (
			id  int64
			pos int32
		)
		if err := rows.Scan(&id, &pos); err != nil {
			return nil, err
		}
		out = append(out, model.Task{ID: id, RoutineID: routineID, Position: int(pos)})
	}
	return out, rows.Err()
}

// applyMoves rewrites positions in two statements: moved rows are first parked on
// distinct negative slots, then assigned, so the (routine_id, position) unique
// index never sees a transient duplicate.
func applyMoves(ctx context.Context, q querier, moves []ordering.Move) error {
	if len(moves) == 0 {
		return nil
	}
	ids := make([]int64, len(moves))
	pos := make([]int32, len(moves))
	for i, m := range moves {
		ids[i] = m.ID
		pos[i] = int32(m.Position)
	}
	const park = `UPDATE tasks SET position = -1 - position WHERE id = ANY($1)`
	const set = `
UPDATE tasks AS t SET position = m.pos
FROM unnest($1::bigint[], $2::int[]) AS m(id, pos)
WHERE t.id = m.id`
	if _, err := q.Exec(ctx, park, ids); err != nil {
		return err
	}
	_, err := q.Exec(ctx, set, ids, pos)
	return err
}

func insertTask(ctx context.Context, q querier, t *model.Task) error {
	const ins = `
INSERT INTO tasks (routine_id, title, description, type, start_time, duration_minutes, priority, is_completed, position)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at`
	err := q.QueryRow(ctx, ins, t.RoutineID, t.Title, textOrNull(t.Description), string(t.Type),
		timeOrNull(t.StartTime), int4OrNull(t.DurationMinutes), string(t.Priority), t.IsCompleted, int32(t.Position)).
		Scan(&t.ID, &t.CreatedAt)
	if isForeignKeyViolation(err) {
		return errs.ErrNotFound
	}
	return err
}

func scanTask(row scanner) (*model.Task, error) {
	var (
		t        model.Task
		desc     pgtype.Text
		typ      string
		start    pgtype.Time
		duration pgtype.Int4
		prio     string
		pos      int32
	)
	if err := row.Scan(&t.ID, &t.RoutineID, &t.Title, &desc, &typ, &start, &duration, &prio,
		&t.IsCompleted, &pos, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Description = textPtr(desc)
	t.Type = model.TaskType(typ)
	if start.Valid {
		tod := model.TimeOfDay(start.Microseconds / 1_000_000)
		t.StartTime = &tod
	}
	if duration.Valid {
		d := duration.Int32
		t.DurationMinutes = &d
	}
	t.Priority = model.Priority(prio)
	t.Position = int(pos)
	return &t, nil
}

func timeOrNull(t *model.TimeOfDay) pgtype.Time {
	if t == nil {
		return pgtype.Time{}
	}
	return pgtype.Time{Microseconds: int64(*t) * 1_000_000, Valid: true}
}

func int4OrNull(v *int32) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: *v, Valid: true}
}
