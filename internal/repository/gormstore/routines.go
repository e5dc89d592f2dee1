package gormstore

import (
	"context"

	"github.com/and161185/rootine/internal/errs"
	"github.com/and161185/rootine/internal/model"
	"gorm.io/gorm"
)

// RoutineRepo implements repository.RoutineRepository on GORM.
type RoutineRepo struct{ db *gorm.DB }

// NewRoutineRepo constructs a routine repository.
func NewRoutineRepo(db *gorm.DB) *RoutineRepo { return &RoutineRepo{db: db} }

func (r *RoutineRepo) Create(ctx context.Context, rt *model.Routine) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&userRow{}, "id = ?", rt.UserID).Error; err != nil {
			return mapErr(err)
		}
		if rt.IsActive {
			if err := demoteOthers(tx, rt.UserID, 0); err != nil {
				return err
			}
		}
		row := toRoutineRow(rt)
		if err := tx.Create(&row).Error; err != nil {
			return mapErr(err)
		}
		rt.ID, rt.CreatedAt = row.ID, row.CreatedAt
		for i := range rt.Tasks {
			t := &rt.Tasks[i]
			t.RoutineID, t.Position = rt.ID, i
			if err := insertTask(tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *RoutineRepo) GetByID(ctx context.Context, id int64) (*model.Routine, error) {
	var row routineRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	rt := row.model()
	return &rt, nil
}

func (r *RoutineRepo) List(ctx context.Context) ([]model.Routine, error) {
	return r.find(r.db.WithContext(ctx))
}

func (r *RoutineRepo) ListByUser(ctx context.Context, userID int64) ([]model.Routine, error) {
	return r.find(r.db.WithContext(ctx).Where("user_id = ?", userID))
}

func (r *RoutineRepo) find(q *gorm.DB) ([]model.Routine, error) {
	var rows []routineRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Routine, len(rows))
	for i, row := range rows {
		out[i] = row.model()
	}
	return out, nil
}

func (r *RoutineRepo) Update(ctx context.Context, rt *model.Routine) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rt.IsActive {
			if err := demoteOthers(tx, rt.UserID, rt.ID); err != nil {
				return err
			}
		}
		res := tx.Model(&routineRow{}).Where("id = ?", rt.ID).Updates(map[string]any{
			"title":        rt.Title,
			"theme":        rt.Theme,
			"detail_level": string(rt.DetailLevel),
			"is_active":    rt.IsActive,
		})
		if res.Error != nil {
			return mapErr(res.Error)
		}
		return affected(res)
	})
}

func (r *RoutineRepo) Activate(ctx context.Context, userID, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&routineRow{}, "id = ? AND user_id = ?", id, userID).Error; err != nil {
			return mapErr(err)
		}
		if err := demoteOthers(tx, userID, id); err != nil {
			return err
		}
		return mapErr(tx.Model(&routineRow{}).Where("id = ?", id).Update("is_active", true).Error)
	})
}

// Delete removes the routine and its tasks.
func (r *RoutineRepo) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("routine_id = ?", id).Delete(&taskRow{}).Error; err != nil {
			return err
		}
		return affected(tx.Where("id = ?", id).Delete(&routineRow{}))
	})
}

func demoteOthers(tx *gorm.DB, userID, keep int64) error {
	return tx.Model(&routineRow{}).
		Where("user_id = ? AND is_active = ? AND id <> ?", userID, true, keep).
		Update("is_active", false).Error
}

// affected turns a zero-row write into ErrNotFound.
func affected(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}
