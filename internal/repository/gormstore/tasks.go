package gormstore

import (
	"context"

	"github.com/and161185/rootine/internal/model"
	"github.com/and161185/rootine/internal/ordering"
	"github.com/and161185/rootine/internal/repository"
	"gorm.io/gorm"
)

// TaskRepo implements repository.TaskRepository on GORM. The single SQLite
// connection serializes transactions, so no row locks are taken.
type TaskRepo struct{ db *gorm.DB }

// NewTaskRepo constructs a task repository.
func NewTaskRepo(db *gorm.DB) *TaskRepo { return &TaskRepo{db: db} }

func (r *TaskRepo) Create(ctx context.Context, t *model.Task, position *int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := positions(tx, t.RoutineID)
		if err != nil {
			return err
		}
		slot, moves := ordering.InsertAt(cur, position)
		if err := applyMoves(tx, moves); err != nil {
			return err
		}
		t.Position = slot
		return insertTask(tx, t)
	})
}

func (r *TaskRepo) GetByID(ctx context.Context, id int64) (*model.Task, error) {
	var row taskRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	t := row.model()
	return &t, nil
}

func (r *TaskRepo) ListByRoutine(ctx context.Context, routineID int64) ([]model.Task, error) {
	var rows []taskRow
	if err := r.db.WithContext(ctx).Where("routine_id = ?", routineID).
		Order("position ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	var out []model.Task
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

func (r *TaskRepo) Update(ctx context.Context, t *model.Task) error {
	row := toTaskRow(t)
	res := r.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", t.ID).Updates(map[string]any{
		"title":            row.Title,
		"description":      row.Description,
		"type":             row.Type,
		"start_time":       row.StartTime,
		"duration_minutes": row.DurationMinutes,
		"priority":         row.Priority,
		"is_completed":     row.IsCompleted,
	})
	return affected(res)
}

func (r *TaskRepo) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row taskRow
		if err := tx.Select("id", "routine_id").First(&row, "id = ?", id).Error; err != nil {
			return mapErr(err)
		}
		if err := tx.Delete(&taskRow{}, "id = ?", id).Error; err != nil {
			return err
		}
		cur, err := positions(tx, row.RoutineID)
		if err != nil {
			return err
		}
		return applyMoves(tx, ordering.Compact(cur))
	})
}

func (r *TaskRepo) Reorder(ctx context.Context, routineID int64, plan repository.PlanFunc) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := positions(tx, routineID)
		if err != nil {
			return err
		}
		moves, err := plan(cur)
		if err != nil {
			return err
		}
		return applyMoves(tx, moves)
	})
}

func (r *TaskRepo) ResetCompleted(ctx context.Context, types []model.TaskType) (int64, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	res := r.db.WithContext(ctx).Model(&taskRow{}).
		Where("is_completed = ? AND type IN ?", true, names).
		Update("is_completed", false)
	return res.RowsAffected, res.Error
}

// positions checks the routine exists and returns its tasks with ID and Position set.
func positions(tx *gorm.DB, routineID int64) ([]model.Task, error) {
	if err := tx.Select("id").First(&routineRow{}, "id = ?", routineID).Error; err != nil {
		return nil, mapErr(err)
	}
	var rows []taskRow
	if err := tx.Select("id", "position").Where("routine_id = ?", routineID).
		Order("position, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Task, len(rows))
	for i, row := range rows {
		out[i] = model.Task{ID: row.ID, RoutineID: routineID, Position: row.Position}
	}
	return out, nil
}

// applyMoves parks moved rows on negative slots before assigning their
// targets so the (routine_id, position) unique index holds after every statement.
func applyMoves(tx *gorm.DB, moves []ordering.Move) error {
	if len(moves) == 0 {
		return nil
	}
	ids := make([]int64, len(moves))
	for i, m := range moves {
		ids[i] = m.ID
	}
	if err := tx.Model(&taskRow{}).Where("id IN ?", ids).
		Update("position", gorm.Expr("-1 - position")).Error; err != nil {
		return err
	}
	for _, m := range moves {
		if err := tx.Model(&taskRow{}).Where("id = ?", m.ID).Update("position", m.Position).Error; err != nil {
			return err
		}
	}
	return nil
}

func insertTask(tx *gorm.DB, t *model.Task) error {
	row := toTaskRow(t)
	if err := tx.Create(&row).Error; err != nil {
		return mapErr(err)
	}
	t.ID, t.CreatedAt = row.ID, row.CreatedAt
	return nil
}
