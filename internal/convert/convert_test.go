package convert

import (
	"testing"
	"time"

	"github.com/and161185/rootine/internal/errs"
	"github.com/and161185/rootine/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestTaskMap_PersistedShape(t *testing.T) {
	t.Parallel()

	start := model.TimeOfDay(9*3600 + 15*60)
	dur := int32(45)
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	task := &model.Task{ID: 7, RoutineID: 3, Title: "Read", Type: model.TaskHabit, Priority: model.PriorityHigh,
		StartTime: &start, DurationMinutes: &dur, Position: 2, CreatedAt: created}

	s := mustStruct(t, TaskMap(task))
	f := s.GetFields()
	require.Equal(t, float64(7), f["id"].GetNumberValue())
	require.Equal(t, float64(3), f["routineId"].GetNumberValue())
	require.Equal(t, "09:15:00", f["startTime"].GetStringValue())
	require.Equal(t, float64(45), f["durationMinutes"].GetNumberValue())
	require.Equal(t, float64(2), f["position"].GetNumberValue())
	require.Equal(t, "2026-03-01T08:00:00Z", f["createdAt"].GetStringValue())
	require.NotContains(t, f, "description")
}

func TestUserMap_NoSecrets(t *testing.T) {
	t.Parallel()

	u := &model.User{ID: 1, PublicID: uuid.Must(uuid.NewV4()), Email: "a@example.com", Name: "A",
		PwdHash: "argon2id$x$y", Roles: []model.Role{model.RoleUser, model.RoleAdmin}}
	s := mustStruct(t, UserMap(u))
	require.NotContains(t, s.GetFields(), "pwdHash")
	require.Len(t, s.GetFields()["roles"].GetListValue().GetValues(), 2)
	require.NotContains(t, s.GetFields(), "lastLogin")
}

func TestRoutineFromStruct_WithTasks(t *testing.T) {
	t.Parallel()

	s := mustStruct(t, map[string]any{
		"title":       "Morning",
		"theme":       "calm",
		"detailLevel": "high",
		"isActive":    true,
		"tasks": []any{
			map[string]any{"title": "Wake", "type": "routine", "startTime": "06:30"},
			map[string]any{"title": "Run", "durationMinutes": 30, "description": nil},
		},
	})
	r, err := RoutineFromStruct(s)
	require.NoError(t, err)
	require.Equal(t, "Morning", r.Title)
	require.Equal(t, "calm", *r.Theme)
	require.Equal(t, model.DetailHigh, r.DetailLevel)
	require.True(t, r.IsActive)
	require.Len(t, r.Tasks, 2)
	require.Equal(t, "06:30:00", r.Tasks[0].StartTime.String())
	require.Equal(t, int32(30), *r.Tasks[1].DurationMinutes)
	require.Nil(t, r.Tasks[1].Description)

	_, err = RoutineFromStruct(mustStruct(t, map[string]any{
		"title": "x", "tasks": []any{map[string]any{"title": "t", "position": 3}},
	}))
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = RoutineFromStruct(mustStruct(t, map[string]any{"title": 5}))
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestDraftMap_AcceptedByCreate(t *testing.T) {
	t.Parallel()

	dur := int32(20)
	start := model.TimeOfDay(7 * 3600)
	draft := &model.Routine{
		Title:       "Morning",
		DetailLevel: model.DetailLow,
		Tasks: []model.Task{{
			Title: "Walk", Type: model.TaskHabit, Priority: model.PriorityHigh,
			StartTime: &start, DurationMinutes: &dur, Position: 4,
		}},
	}
	m := DraftMap(draft)
	require.NotContains(t, m, "id")
	require.NotContains(t, m, "isActive")

	r, err := RoutineFromStruct(mustStruct(t, m))
	require.NoError(t, err)
	require.Equal(t, "Morning", r.Title)
	require.Len(t, r.Tasks, 1)
	require.Equal(t, model.TaskHabit, r.Tasks[0].Type)
	require.Equal(t, "07:00:00", r.Tasks[0].StartTime.String())

	empty := DraftMap(&model.Routine{DetailLevel: model.DetailMedium})
	require.Equal(t, []any{}, empty["tasks"])
	require.NotContains(t, empty, "title")
}

func TestTaskPatchFromStruct_RejectsPosition(t *testing.T) {
	t.Parallel()

	_, err := TaskPatchFromStruct(mustStruct(t, map[string]any{"title": "x", "position": 0}))
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = TaskPatchFromStruct(mustStruct(t, map[string]any{"routineId": 2}))
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	p, err := TaskPatchFromStruct(mustStruct(t, map[string]any{"isCompleted": true, "priority": "low"}))
	require.NoError(t, err)
	require.Nil(t, p.Title)
	require.True(t, *p.IsCompleted)
	require.Equal(t, model.PriorityLow, *p.Priority)

	_, err = TaskPatchFromStruct(mustStruct(t, map[string]any{"startTime": "25:99"}))
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = TaskPatchFromStruct(mustStruct(t, map[string]any{"durationMinutes": 1.5}))
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestTaskFromStruct_Position(t *testing.T) {
	t.Parallel()

	task, pos, err := TaskFromStruct(mustStruct(t, map[string]any{"routineId": 4, "title": "x"}))
	require.NoError(t, err)
	require.Equal(t, int64(4), task.RoutineID)
	require.Nil(t, pos)

	_, pos, err = TaskFromStruct(mustStruct(t, map[string]any{"routineId": 4, "title": "x", "position": 1}))
	require.NoError(t, err)
	require.Equal(t, 1, *pos)
}

func TestRoutinePatchFromStruct_ImmutableFields(t *testing.T) {
	t.Parallel()

	_, err := RoutinePatchFromStruct(mustStruct(t, map[string]any{"createdAt": "2020-01-01T00:00:00Z"}))
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, err = RoutinePatchFromStruct(mustStruct(t, map[string]any{"userId": 9}))
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	p, err := RoutinePatchFromStruct(mustStruct(t, map[string]any{"isActive": false}))
	require.NoError(t, err)
	require.False(t, *p.IsActive)
}

func TestIDs(t *testing.T) {
	t.Parallel()

	ids, err := IDs(mustStruct(t, map[string]any{"taskIds": []any{3, 1, 2}}), "taskIds")
	require.NoError(t, err)
	require.Equal(t, []int64{3, 1, 2}, ids)

	ids, err = IDs(mustStruct(t, map[string]any{}), "taskIds")
	require.NoError(t, err)
	require.Empty(t, ids)

	_, err = IDs(mustStruct(t, map[string]any{"taskIds": []any{"a"}}), "taskIds")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	for _, bad := range []any{1e300, float64(1<<53) * 4, 2.5, 0} {
		_, err = IDs(mustStruct(t, map[string]any{"taskIds": []any{1, bad}}), "taskIds")
		require.ErrorIs(t, err, errs.ErrInvalidArgument, "%v", bad)
	}
	ids, err = IDs(mustStruct(t, map[string]any{"taskIds": []any{float64(1 << 53)}}), "taskIds")
	require.NoError(t, err)
	require.Equal(t, []int64{1 << 53}, ids)

	_, err = ID(mustStruct(t, map[string]any{}), "id")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	id, err := ID(mustStruct(t, map[string]any{"id": 12}), "id")
	require.NoError(t, err)
	require.Equal(t, int64(12), id)
}
