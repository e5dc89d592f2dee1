// Package model defines domain entities used by services and repositories.
package model

import (
	"fmt"
	"slices"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects issued access/refresh tokens (refresh optional).
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry (for diagnostics)
}

// Role is a capability granted to a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Caller is the authenticated identity on whose behalf a core call runs.
// The zero value is an anonymous caller.
type Caller struct {
	UserID int64
	Roles  []Role
}

// Authenticated reports whether the caller carries a user identity.
func (c Caller) Authenticated() bool { return c.UserID > 0 }

// IsAdmin reports whether the caller holds the administrator capability.
func (c Caller) IsAdmin() bool { return slices.Contains(c.Roles, RoleAdmin) }

// User represents an account. The password is stored only as an encoded Argon2id hash.
type User struct {
	ID        int64     // PK
	PublicID  uuid.UUID // opaque id exposed in tokens
	Email     string    // unique
	Name      string
	PwdHash   string
	Roles     []Role
	CreatedAt time.Time
	LastLogin *time.Time
}

// Caller returns the identity a token issued for u carries.
func (u *User) Caller() Caller {
	return Caller{UserID: u.ID, Roles: slices.Clone(u.Roles)}
}

// UserPatch lists user fields to change; nil means "keep".
type UserPatch struct {
	Name     *string
	Email    *string
	Password *string
}

// DetailLevel controls how verbose a routine is.
type DetailLevel string

const (
	DetailLow    DetailLevel = "low"
	DetailMedium DetailLevel = "medium"
	DetailHigh   DetailLevel = "high"
)

// Valid reports whether d is a known level.
func (d DetailLevel) Valid() bool {
	return d == DetailLow || d == DetailMedium || d == DetailHigh
}

// Routine is an ordered collection of tasks owned by one user.
type Routine struct {
	ID          int64
	UserID      int64 // FK -> users.id, immutable
	Title       string
	Theme       *string
	DetailLevel DetailLevel
	IsActive    bool
	CreatedAt   time.Time

	// Tasks is only used for nested creation; reads never fill it.
	Tasks []Task
}

// RoutinePatch lists routine fields to change; nil means "keep".
type RoutinePatch struct {
	Title       *string
	Theme       *string
	DetailLevel *DetailLevel
	IsActive    *bool
}

// Apply copies the provided fields onto r.
func (p RoutinePatch) Apply(r *Routine) {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Theme != nil {
		r.Theme = p.Theme
	}
	if p.DetailLevel != nil {
		r.DetailLevel = *p.DetailLevel
	}
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
}

// TaskType classifies a task.
type TaskType string

const (
	TaskRoutine TaskType = "routine"
	TaskOneTime TaskType = "one_time"
	TaskEvent   TaskType = "event"
	TaskHabit   TaskType = "habit"
)

// Valid reports whether t is a known type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskRoutine, TaskOneTime, TaskEvent, TaskHabit:
		return true
	}
	return false
}

// Recurring reports whether completion of t is reset every day.
func (t TaskType) Recurring() bool { return t == TaskRoutine || t == TaskHabit }

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// TimeOfDay is a wall-clock time in seconds since midnight.
type TimeOfDay int32

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second()), nil
		}
	}
	return 0, fmt.Errorf("bad time of day %q", s)
}

// String renders t as "HH:MM:SS".
func (t TimeOfDay) String() string {
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}

// Task is a single step of a routine.
type Task struct {
	ID              int64
	RoutineID       int64 // FK -> routines.id, immutable
	Title           string
	Description     *string
	Type            TaskType
	StartTime       *TimeOfDay
	DurationMinutes *int32
	Priority        Priority
	IsCompleted     bool
	Position        int
	CreatedAt       time.Time
}

// TaskPatch lists task fields to change; nil means "keep".
// Position is absent: ordering changes go through Reorder.
type TaskPatch struct {
	Title           *string
	Description     *string
	Type            *TaskType
	StartTime       *TimeOfDay
	DurationMinutes *int32
	Priority        *Priority
	IsCompleted     *bool
}

// Apply copies the provided fields onto t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = p.Description
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.StartTime != nil {
		t.StartTime = p.StartTime
	}
	if p.DurationMinutes != nil {
		t.DurationMinutes = p.DurationMinutes
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.IsCompleted != nil {
		t.IsCompleted = *p.IsCompleted
	}
}
