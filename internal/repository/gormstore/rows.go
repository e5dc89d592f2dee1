package gormstore

import (
	"strings"
	"time"

	"github.com/and161185/rootine/internal/model"
	"github.com/gofrs/uuid/v5"
)

type userRow struct {
	ID        int64  `gorm:"primaryKey"`
	PublicID  string `gorm:"uniqueIndex;not null"`
	Email     string `gorm:"uniqueIndex;not null"`
	Name      string `gorm:"not null"`
	PwdHash   string `gorm:"not null"`
	Roles     string `gorm:"not null;default:user"`
	CreatedAt time.Time
	LastLogin *time.Time
}

func (userRow) TableName() string { return "users" }

type routineRow struct {
	ID          int64  `gorm:"primaryKey"`
	UserID      int64  `gorm:"not null;index"`
	Title       string `gorm:"not null"`
	Theme       *string
	DetailLevel string `gorm:"not null"`
	IsActive    bool   `gorm:"not null"`
	CreatedAt   time.Time
}

func (routineRow) TableName() string { return "routines" }

type taskRow struct {
	ID              int64  `gorm:"primaryKey"`
	RoutineID       int64  `gorm:"not null;uniqueIndex:tasks_routine_position,priority:1"`
	Title           string `gorm:"not null"`
	Description     *string
	Type            string `gorm:"not null"`
	StartTime       *int32
	DurationMinutes *int32
	Priority        string `gorm:"not null"`
	IsCompleted     bool   `gorm:"not null"`
	Position        int    `gorm:"not null;uniqueIndex:tasks_routine_position,priority:2"`
	CreatedAt       time.Time
}

func (taskRow) TableName() string { return "tasks" }

func toUserRow(u *model.User) userRow {
	roles := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = string(r)
	}
	return userRow{
		ID:        u.ID,
		PublicID:  u.PublicID.String(),
		Email:     u.Email,
		Name:      u.Name,
		PwdHash:   u.PwdHash,
		Roles:     strings.Join(roles, ","),
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

func (r userRow) model() (*model.User, error) {
	pid, err := uuid.FromString(r.PublicID)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:        r.ID,
		PublicID:  pid,
		Email:     r.Email,
		Name:      r.Name,
		PwdHash:   r.PwdHash,
		CreatedAt: r.CreatedAt,
		LastLogin: r.LastLogin,
	}
	for _, s := range strings.Split(r.Roles, ",") {
		if s != "" {
			u.Roles = append(u.Roles, model.Role(s))
		}
	}
	return u, nil
}

func toRoutineRow(r *model.Routine) routineRow {
	return routineRow{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Theme:       r.Theme,
		DetailLevel: string(r.DetailLevel),
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
	}
}

func (r routineRow) model() model.Routine {
	return model.Routine{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Theme:       r.Theme,
		DetailLevel: model.DetailLevel(r.DetailLevel),
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
	}
}

func toTaskRow(t *model.Task) taskRow {
	row := taskRow{
		ID:              t.ID,
		RoutineID:       t.RoutineID,
		Title:           t.Title,
		Description:     t.Description,
		Type:            string(t.Type),
		DurationMinutes: t.DurationMinutes,
		Priority:        string(t.Priority),
		IsCompleted:     t.IsCompleted,
		Position:        t.Position,
		CreatedAt:       t.CreatedAt,
	}
	if t.StartTime != nil {
		s := int32(*t.StartTime)
		row.StartTime = &s
	}
	return row
}

func (r taskRow) model() model.Task {
	t := model.Task{
		ID:              r.ID,
		RoutineID:       r.RoutineID,
		Title:           r.Title,
		Description:     r.Description,
		Type:            model.TaskType(r.Type),
		DurationMinutes: r.DurationMinutes,
		Priority:        model.Priority(r.Priority),
		IsCompleted:     r.IsCompleted,
		Position:        r.Position,
		CreatedAt:       r.CreatedAt,
	}
	if r.StartTime != nil {
		tod := model.TimeOfDay(*r.StartTime)
		t.StartTime = &tod
	}
	return t
}
