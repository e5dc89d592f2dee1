package gormstore

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/and161185/rootine/internal/errs"
	"github.com/and161185/rootine/internal/model"
	"github.com/and161185/rootine/internal/ordering"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := NewDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *model.User {
	t.Helper()
	u := &model.User{
		PublicID: uuid.Must(uuid.NewV4()),
		Email:    email,
		Name:     "n",
		PwdHash:  "h",
		Roles:    []model.Role{model.RoleUser},
	}
	require.NoError(t, NewUserRepo(db).Create(context.Background(), u))
	return u
}

func positionsOf(t *testing.T, tasks *TaskRepo, routineID int64) map[int64]int {
	t.Helper()
	list, err := tasks.ListByRoutine(context.Background(), routineID)
	require.NoError(t, err)
	out := make(map[int64]int, len(list))
	for _, task := range list {
		out[task.ID] = task.Position
	}
	return out
}

func TestUserRepo_RoundTripAndDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := NewUserRepo(db)

	u := seedUser(t, db, "a@example.com")
	require.NotZero(t, u.ID)
	require.False(t, u.CreatedAt.IsZero())

	got, err := users.GetByPublicID(ctx, u.PublicID)
	require.NoError(t, err)
	require.Equal(t, "a@example.com", got.Email)
	require.Equal(t, []model.Role{model.RoleUser}, got.Roles)
	require.Nil(t, got.LastLogin)

	dup := &model.User{PublicID: uuid.Must(uuid.NewV4()), Email: "a@example.com", Name: "x", PwdHash: "h"}
	require.ErrorIs(t, users.Create(ctx, dup), errs.ErrAlreadyExists)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, users.TouchLastLogin(ctx, u.ID, now))
	got, err = users.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	require.True(t, now.Equal(*got.LastLogin))

	_, err = users.GetByID(ctx, 999)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_DeleteCascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "a@example.com")
	routines := NewRoutineRepo(db)
	tasks := NewTaskRepo(db)

	rt := &model.Routine{UserID: u.ID, Title: "r", DetailLevel: model.DetailLow,
		Tasks: []model.Task{{Title: "t", Type: model.TaskRoutine, Priority: model.PriorityLow}}}
	require.NoError(t, routines.Create(ctx, rt))

	require.NoError(t, NewUserRepo(db).Delete(ctx, u.ID))
	_, err := routines.GetByID(ctx, rt.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = tasks.GetByID(ctx, rt.Tasks[0].ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.ErrorIs(t, NewUserRepo(db).Delete(ctx, u.ID), errs.ErrNotFound)
}

func TestRoutineRepo_OneActivePerUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := seedUser(t, db, "a@example.com")
	b := seedUser(t, db, "b@example.com")
	routines := NewRoutineRepo(db)

	r1 := &model.Routine{UserID: a.ID, Title: "one", DetailLevel: model.DetailLow, IsActive: true}
	r2 := &model.Routine{UserID: a.ID, Title: "two", DetailLevel: model.DetailLow, IsActive: true}
	rb := &model.Routine{UserID: b.ID, Title: "b", DetailLevel: model.DetailLow, IsActive: true}
	require.NoError(t, routines.Create(ctx, r1))
	require.NoError(t, routines.Create(ctx, r2))
	require.NoError(t, routines.Create(ctx, rb))

	active := func(id int64) bool {
		r, err := routines.GetByID(ctx, id)
		require.NoError(t, err)
		return r.IsActive
	}
	require.False(t, active(r1.ID))
	require.True(t, active(r2.ID))
	require.True(t, active(rb.ID))

	require.NoError(t, routines.Activate(ctx, a.ID, r1.ID))
	require.True(t, active(r1.ID))
	require.False(t, active(r2.ID))
	require.True(t, active(rb.ID))

	require.ErrorIs(t, routines.Activate(ctx, b.ID, r1.ID), errs.ErrNotFound)
	require.True(t, active(r1.ID))

	r2.IsActive = true
	require.NoError(t, routines.Update(ctx, r2))
	require.False(t, active(r1.ID))
	require.True(t, active(r2.ID))

	// The partial unique index backs the rule even for raw writes.
	err := db.Model(&routineRow{}).Where("id = ?", r1.ID).Update("is_active", true).Error
	require.Error(t, err)
}

func TestRoutineRepo_CreateUnknownUser(t *testing.T) {
	db := newTestDB(t)
	err := NewRoutineRepo(db).Create(context.Background(),
		&model.Routine{UserID: 42, Title: "r", DetailLevel: model.DetailLow})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTaskRepo_DensePositions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "a@example.com")
	rt := &model.Routine{UserID: u.ID, Title: "r", DetailLevel: model.DetailLow}
	require.NoError(t, NewRoutineRepo(db).Create(ctx, rt))
	tasks := NewTaskRepo(db)

	mk := func(title string, at *int) *model.Task {
		task := &model.Task{RoutineID: rt.ID, Title: title, Type: model.TaskOneTime, Priority: model.PriorityMedium}
		require.NoError(t, tasks.Create(ctx, task, at))
		return task
	}
	a := mk("a", nil)
	b := mk("b", nil)
	zero := 0
	c := mk("c", &zero)
	far := 99
	d := mk("d", &far)

	require.Equal(t, map[int64]int{c.ID: 0, a.ID: 1, b.ID: 2, d.ID: 3}, positionsOf(t, tasks, rt.ID))

	require.NoError(t, tasks.Delete(ctx, a.ID))
	require.Equal(t, map[int64]int{c.ID: 0, b.ID: 1, d.ID: 2}, positionsOf(t, tasks, rt.ID))

	err := tasks.Reorder(ctx, rt.ID, func(cur []model.Task) ([]ordering.Move, error) {
		return ordering.Reorder(cur, []int64{d.ID, c.ID, b.ID})
	})
	require.NoError(t, err)
	require.Equal(t, map[int64]int{d.ID: 0, c.ID: 1, b.ID: 2}, positionsOf(t, tasks, rt.ID))

	err = tasks.Reorder(ctx, rt.ID, func(cur []model.Task) ([]ordering.Move, error) {
		return ordering.Reorder(cur, []int64{d.ID, c.ID})
	})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	require.Equal(t, map[int64]int{d.ID: 0, c.ID: 1, b.ID: 2}, positionsOf(t, tasks, rt.ID))

	err = tasks.Create(ctx, &model.Task{RoutineID: 999, Title: "x", Type: model.TaskEvent, Priority: model.PriorityLow}, nil)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTaskRepo_UpdateKeepsPosition(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "a@example.com")
	start := model.TimeOfDay(8 * 3600)
	dur := int32(20)
	rt := &model.Routine{UserID: u.ID, Title: "r", DetailLevel: model.DetailHigh, Tasks: []model.Task{
		{Title: "a", Type: model.TaskHabit, Priority: model.PriorityLow},
		{Title: "b", Type: model.TaskEvent, Priority: model.PriorityLow, StartTime: &start, DurationMinutes: &dur},
	}}
	require.NoError(t, NewRoutineRepo(db).Create(ctx, rt))
	tasks := NewTaskRepo(db)

	got, err := tasks.GetByID(ctx, rt.Tasks[1].ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Position)
	require.Equal(t, start, *got.StartTime)

	got.Title = "b2"
	got.StartTime = nil
	got.IsCompleted = true
	got.Position = 0
	require.NoError(t, tasks.Update(ctx, got))

	got, err = tasks.GetByID(ctx, rt.Tasks[1].ID)
	require.NoError(t, err)
	require.Equal(t, "b2", got.Title)
	require.Nil(t, got.StartTime)
	require.Equal(t, 1, got.Position)

	require.ErrorIs(t, tasks.Update(ctx, &model.Task{ID: 999}), errs.ErrNotFound)
}

func TestTaskRepo_ResetCompleted(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "a@example.com")
	rt := &model.Routine{UserID: u.ID, Title: "r", DetailLevel: model.DetailLow, Tasks: []model.Task{
		{Title: "a", Type: model.TaskHabit, Priority: model.PriorityLow, IsCompleted: true},
		{Title: "b", Type: model.TaskOneTime, Priority: model.PriorityLow, IsCompleted: true},
		{Title: "c", Type: model.TaskRoutine, Priority: model.PriorityLow, IsCompleted: true},
	}}
	require.NoError(t, NewRoutineRepo(db).Create(ctx, rt))
	tasks := NewTaskRepo(db)

	n, err := tasks.ResetCompleted(ctx, []model.TaskType{model.TaskRoutine, model.TaskHabit})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	list, err := tasks.ListByRoutine(ctx, rt.ID)
	require.NoError(t, err)
	require.False(t, list[0].IsCompleted)
	require.True(t, list[1].IsCompleted)
	require.False(t, list[2].IsCompleted)
}
