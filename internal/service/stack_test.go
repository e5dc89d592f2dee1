package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/and161185/rootine/internal/authz"
	"github.com/and161185/rootine/internal/model"
	"github.com/and161185/rootine/internal/repository/gormstore"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stack wires the services over an in-memory SQLite store.
type stack struct {
	routines *RoutineServiceImpl
	tasks    *TaskServiceImpl
	taskRepo *gormstore.TaskRepo
	u1, u2   model.Caller
	admin    model.Caller
}

func newStack(t *testing.T) *stack {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gormstore.NewDB(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	users := gormstore.NewUserRepo(db)
	routines := gormstore.NewRoutineRepo(db)
	tasks := gormstore.NewTaskRepo(db)
	guard := authz.NewGuard(users)

	mk := func(email string, roles ...model.Role) model.Caller {
		u := &model.User{PublicID: uuid.Must(uuid.NewV4()), Email: email, Name: email, PwdHash: "h", Roles: roles}
		require.NoError(t, users.Create(context.Background(), u))
		return u.Caller()
	}
	return &stack{
		routines: NewRoutineService(routines, guard),
		tasks:    NewTaskService(tasks, routines, guard),
		taskRepo: tasks,
		u1:       mk("u1@example.com", model.RoleUser),
		u2:       mk("u2@example.com", model.RoleUser),
		admin:    mk("root@example.com", model.RoleUser, model.RoleAdmin),
	}
}

func (s *stack) routine(t *testing.T, owner model.Caller, title string, active bool, tasks ...string) *model.Routine {
	t.Helper()
	r := &model.Routine{UserID: owner.UserID, Title: title, IsActive: active}
	for _, tt := range tasks {
		r.Tasks = append(r.Tasks, model.Task{Title: tt})
	}
	require.NoError(t, s.routines.Create(context.Background(), r))
	return r
}

func (s *stack) order(t *testing.T, routineID int64) []int64 {
	t.Helper()
	list, err := s.taskRepo.ListByRoutine(context.Background(), routineID)
	require.NoError(t, err)
	ids := make([]int64, len(list))
	for i, task := range list {
		require.Equal(t, i, task.Position, "positions must be dense")
		ids[i] = task.ID
	}
	return ids
}

func (s *stack) activeCount(t *testing.T, userID int64) int {
	t.Helper()
	list, err := s.routines.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	n := 0
	for _, r := range list {
		if r.IsActive {
			n++
		}
	}
	return n
}
