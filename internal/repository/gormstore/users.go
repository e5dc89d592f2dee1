package gormstore

import (
	"context"
	"time"

	"github.com/and161185/rootine/internal/model"
	"github.com/gofrs/uuid/v5"
	"gorm.io/gorm"
)

// UserRepo implements repository.UserRepository on GORM.
type UserRepo struct{ db *gorm.DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *gorm.DB) *UserRepo { return &UserRepo{db: db} }

func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	row := toUserRow(u)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return mapErr(err)
	}
	u.ID, u.CreatedAt = row.ID, row.CreatedAt
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepo) GetByPublicID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.first(ctx, "public_id = ?", id.String())
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *UserRepo) first(ctx context.Context, cond string, arg any) (*model.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).Where(cond, arg).First(&row).Error; err != nil {
		return nil, mapErr(err)
	}
	return row.model()
}

func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	var rows []userRow
	if err := r.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.User, 0, len(rows))
	for _, row := range rows {
		u, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, nil
}

func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	res := r.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", u.ID).Updates(map[string]any{
		"email":    u.Email,
		"name":     u.Name,
		"pwd_hash": u.PwdHash,
	})
	if res.Error != nil {
		return mapErr(res.Error)
	}
	return affected(res)
}

func (r *UserRepo) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).Update("last_login", at)
	if res.Error != nil {
		return res.Error
	}
	return affected(res)
}

// Delete removes the user, its routines and their tasks in one transaction.
func (r *UserRepo) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := tx.Model(&routineRow{}).Select("id").Where("user_id = ?", id)
		if err := tx.Where("routine_id IN (?)", owned).Delete(&taskRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&routineRow{}).Error; err != nil {
			return err
		}
		return affected(tx.Where("id = ?", id).Delete(&userRow{}))
	})
}
