package convert

import (
	"fmt"
	"time"

	"github.com/and161185/rootine/internal/errs"
	"github.com/and161185/rootine/internal/model"
	"google.golang.org/protobuf/types/known/structpb"
)

func ts(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// UserMap renders the public fields of u. The password hash is never exposed.
func UserMap(u *model.User) map[string]any {
	roles := make([]any, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = string(r)
	}
	m := map[string]any{
		"id":        u.ID,
		"publicId":  u.PublicID.String(),
		"email":     u.Email,
		"name":      u.Name,
		"roles":     roles,
		"createdAt": ts(u.CreatedAt),
	}
	if u.LastLogin != nil {
		m["lastLogin"] = ts(*u.LastLogin)
	}
	return m
}

// RoutineMap renders r in its persisted shape.
func RoutineMap(r *model.Routine) map[string]any {
	m := map[string]any{
		"id":          r.ID,
		"userId":      r.UserID,
		"title":       r.Title,
		"detailLevel": string(r.DetailLevel),
		"isActive":    r.IsActive,
		"createdAt":   ts(r.CreatedAt),
	}
	if r.Theme != nil {
		m["theme"] = *r.Theme
	}
	if len(r.Tasks) > 0 {
		tasks := make([]any, len(r.Tasks))
		for i := range r.Tasks {
			tasks[i] = TaskMap(&r.Tasks[i])
		}
		m["tasks"] = tasks
	}
	return m
}

// DraftMap renders an unsaved routine in the CreateRoutine request shape,
// so it can be sent back as is.
func DraftMap(r *model.Routine) map[string]any {
	m := map[string]any{"detailLevel": string(r.DetailLevel)}
	if r.Title != "" {
		m["title"] = r.Title
	}
	if r.Theme != nil {
		m["theme"] = *r.Theme
	}
	tasks := make([]any, len(r.Tasks))
	for i := range r.Tasks {
		t := TaskMap(&r.Tasks[i])
		for _, k := range []string{"id", "routineId", "position", "createdAt", "isCompleted"} {
			delete(t, k)
		}
		tasks[i] = t
	}
	m["tasks"] = tasks
	return m
}

// TaskMap renders t in its persisted shape.
func TaskMap(t *model.Task) map[string]any {
	m := map[string]any{
		"id":          t.ID,
		"routineId":   t.RoutineID,
		"title":       t.Title,
		"type":        string(t.Type),
		"priority":    string(t.Priority),
		"isCompleted": t.IsCompleted,
		"position":    t.Position,
		"createdAt":   ts(t.CreatedAt),
	}
	if t.Description != nil {
		m["description"] = *t.Description
	}
	if t.StartTime != nil {
		m["startTime"] = t.StartTime.String()
	}
	if t.DurationMinutes != nil {
		m["durationMinutes"] = *t.DurationMinutes
	}
	return m
}

// List wraps rendered items under key.
func List[T any](key string, items []T, render func(*T) map[string]any) (*structpb.Struct, error) {
	out := make([]any, len(items))
	for i := range items {
		out[i] = render(&items[i])
	}
	return structpb.NewStruct(map[string]any{key: out})
}

// RoutineFromStruct reads a new routine with optional inline tasks.
// The owner is not read from the body.
func RoutineFromStruct(s *structpb.Struct) (*model.Routine, error) {
	f := fieldsOf(s)
	if err := f.reject("id", "createdAt"); err != nil {
		return nil, err
	}
	p, err := routinePatch(f)
	if err != nil {
		return nil, err
	}
	r := &model.Routine{}
	p.Apply(r)

	vals, _, err := f.list("tasks")
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		sv, ok := v.GetKind().(*structpb.Value_StructValue)
		if !ok {
			return nil, badField(fmt.Sprintf("tasks[%d]", i), "an object")
		}
		tf := fieldsOf(sv.StructValue)
		if err := tf.reject("id", "routineId", "position", "createdAt"); err != nil {
			return nil, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		t, err := taskFromFields(tf)
		if err != nil {
			return nil, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		r.Tasks = append(r.Tasks, *t)
	}
	return r, nil
}

// RoutinePatchFromStruct reads a partial routine update.
func RoutinePatchFromStruct(s *structpb.Struct) (model.RoutinePatch, error) {
	f := fieldsOf(s)
	if err := f.reject("userId", "createdAt", "tasks"); err != nil {
		return model.RoutinePatch{}, err
	}
	return routinePatch(f)
}

func routinePatch(f fields) (model.RoutinePatch, error) {
	var p model.RoutinePatch
	var err error
	if p.Title, err = f.str("title"); err != nil {
		return p, err
	}
	if p.Theme, err = f.str("theme"); err != nil {
		return p, err
	}
	level, err := f.str("detailLevel")
	if err != nil {
		return p, err
	}
	if level != nil {
		d := model.DetailLevel(*level)
		p.DetailLevel = &d
	}
	if p.IsActive, err = f.boolean("isActive"); err != nil {
		return p, err
	}
	return p, nil
}

// TaskFromStruct reads a new task and its optional requested position.
func TaskFromStruct(s *structpb.Struct) (*model.Task, *int, error) {
	f := fieldsOf(s)
	if err := f.reject("id", "createdAt"); err != nil {
		return nil, nil, err
	}
	t, err := taskFromFields(f)
	if err != nil {
		return nil, nil, err
	}
	rid, err := f.int64("routineId")
	if err != nil {
		return nil, nil, err
	}
	if rid != nil {
		t.RoutineID = *rid
	}
	pos, err := f.int32("position")
	if err != nil {
		return nil, nil, err
	}
	if pos == nil {
		return t, nil, nil
	}
	at := int(*pos)
	return t, &at, nil
}

func taskFromFields(f fields) (*model.Task, error) {
	p, err := taskPatch(f)
	if err != nil {
		return nil, err
	}
	t := &model.Task{}
	p.Apply(t)
	return t, nil
}

// TaskPatchFromStruct reads a partial task update. Position changes go
// through ReorderTasks and are rejected here.
func TaskPatchFromStruct(s *structpb.Struct) (model.TaskPatch, error) {
	f := fieldsOf(s)
	if err := f.reject("position", "routineId", "createdAt"); err != nil {
		return model.TaskPatch{}, err
	}
	return taskPatch(f)
}

func taskPatch(f fields) (model.TaskPatch, error) {
	var p model.TaskPatch
	var err error
	if p.Title, err = f.str("title"); err != nil {
		return p, err
	}
	if p.Description, err = f.str("description"); err != nil {
		return p, err
	}
	typ, err := f.str("type")
	if err != nil {
		return p, err
	}
	if typ != nil {
		tt := model.TaskType(*typ)
		p.Type = &tt
	}
	start, err := f.str("startTime")
	if err != nil {
		return p, err
	}
	if start != nil {
		tod, err := model.ParseTimeOfDay(*start)
		if err != nil {
			return p, fmt.Errorf("%w: %w", errs.ErrInvalidArgument, err)
		}
		p.StartTime = &tod
	}
	if p.DurationMinutes, err = f.int32("durationMinutes"); err != nil {
		return p, err
	}
	prio, err := f.str("priority")
	if err != nil {
		return p, err
	}
	if prio != nil {
		pr := model.Priority(*prio)
		p.Priority = &pr
	}
	if p.IsCompleted, err = f.boolean("isCompleted"); err != nil {
		return p, err
	}
	return p, nil
}

// UserPatchFromStruct reads a partial account update.
func UserPatchFromStruct(s *structpb.Struct) (model.UserPatch, error) {
	f := fieldsOf(s)
	if err := f.reject("roles", "publicId", "createdAt"); err != nil {
		return model.UserPatch{}, err
	}
	var p model.UserPatch
	var err error
	if p.Name, err = f.str("name"); err != nil {
		return p, err
	}
	if p.Email, err = f.str("email"); err != nil {
		return p, err
	}
	if p.Password, err = f.str("password"); err != nil {
		return p, err
	}
	return p, nil
}
