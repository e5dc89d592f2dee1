// Package grpcserver exposes the Rootine gRPC API handlers.
package grpcserver

import (
	"context"
	"net"
	"time"

	"github.com/and161185/rootine/internal/authz"
	"github.com/and161185/rootine/internal/convert"
	"github.com/and161185/rootine/internal/model"
	"github.com/and161185/rootine/internal/service"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server wires services into gRPC handlers.
type Server struct {
	users    service.UserService
	routines service.RoutineService
	tasks    service.TaskService
	drafts   service.DraftService
	guard    *authz.Guard
}

// New constructs a gRPC server with injected services.
func New(users service.UserService, routines service.RoutineService, tasks service.TaskService,
	drafts service.DraftService, guard *authz.Guard) *Server {
	return &Server{users: users, routines: routines, tasks: tasks, drafts: drafts, guard: guard}
}

func caller(ctx context.Context) (model.Caller, error) {
	c, ok := CallerFromCtx(ctx)
	if !ok {
		return model.Caller{}, status.Error(codes.Unauthenticated, "no auth")
	}
	return c, nil
}

func object(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return s, nil
}

func empty() (*structpb.Struct, error) { return &structpb.Struct{}, nil }

// remoteIP returns the peer host without the port, so attempts from one client share a limiter key.
func remoteIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// --- Users ---

// Register creates a new account.
func (s *Server) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	email, err := convert.String(req, "email")
	if err != nil {
		return nil, toStatus("register", err)
	}
	name, err := convert.String(req, "name")
	if err != nil {
		return nil, toStatus("register", err)
	}
	password, err := convert.String(req, "password")
	if err != nil {
		return nil, toStatus("register", err)
	}
	if email == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "empty email/password")
	}
	if name == "" {
		name = email
	}
	u, err := s.users.Register(ctx, email, name, password)
	if err != nil {
		return nil, toStatus("register", err)
	}
	return object(convert.UserMap(u))
}

// Login authenticates a user and returns an access token.
func (s *Server) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	email, err := convert.String(req, "email")
	if err != nil {
		return nil, toStatus("login", err)
	}
	password, err := convert.String(req, "password")
	if err != nil {
		return nil, toStatus("login", err)
	}
	tok, u, err := s.users.Login(ctx, email, password, remoteIP(ctx))
	if err != nil {
		return nil, toStatus("login", err)
	}
	return object(map[string]any{
		"accessToken": tok.AccessToken,
		"expiresAt":   tok.ExpiresAt.UTC().Format(time.RFC3339),
		"user":        convert.UserMap(&u),
	})
}

// Me returns the caller's account.
func (s *Server) Me(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Me(ctx, c)
	if err != nil {
		return nil, toStatus("me", err)
	}
	return object(convert.UserMap(u))
}

func (s *Server) GetUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ID(req, "id")
	if err != nil {
		return nil, toStatus("get user", err)
	}
	u, err := s.users.Get(ctx, c, id)
	if err != nil {
		return nil, toStatus("get user", err)
	}
	return object(convert.UserMap(u))
}

func (s *Server) UpdateUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ID(req, "id")
	if err != nil {
		return nil, toStatus("update user", err)
	}
	patch, err := convert.UserPatchFromStruct(req)
	if err != nil {
		return nil, toStatus("update user", err)
	}
	u, err := s.users.Update(ctx, c, id, patch)
	if err != nil {
		return nil, toStatus("update user", err)
	}
	return object(convert.UserMap(u))
}

func (s *Server) DeleteUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ID(req, "id")
	if err != nil {
		return nil, toStatus("delete user", err)
	}
	if err := s.users.Delete(ctx, c, id); err != nil {
		return nil, toStatus("delete user", err)
	}
	return empty()
}

// ListUsers returns every account. Admin only.
func (s *Server) ListUsers(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.users.List(ctx, c)
	if err != nil {
		return nil, toStatus("list users", err)
	}
	out, err := convert.List("users", list, convert.UserMap)
	if err != nil {
		return nil, toStatus("list users", err)
	}
	return out, nil
}

// --- Routines ---

// ListRoutines returns the caller's routines. Admins may pass userId, or
// omit it to see every routine.
func (s *Server) ListRoutines(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	uid := c.UserID
	if _, ok := req.GetFields()["userId"]; ok {
		if uid, err = convert.ID(req, "userId"); err != nil {
			return nil, toStatus("list routines", err)
		}
		if err = s.guard.VerifyOwnershipOrAdmin(c, uid); err != nil {
			return nil, toStatus("list routines", err)
		}
	} else if c.IsAdmin() {
		uid = 0
	}
	var list []model.Routine
	if uid == 0 {
		list, err = s.routines.ListAll(ctx)
	} else {
		list, err = s.routines.ListByUser(ctx, uid)
	}
	if err != nil {
		return nil, toStatus("list routines", err)
	}
	out, err := convert.List("routines", list, convert.RoutineMap)
	if err != nil {
		return nil, toStatus("list routines", err)
	}
	return out, nil
}

// GetRoutine returns a routine with its tasks in order.
func (s *Server) GetRoutine(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ID(req, "id")
	if err != nil {
		return nil, toStatus("get routine", err)
	}
	r, err := s.routines.Get(ctx, id)
	if err != nil {
		return nil, toStatus("get routine", err)
	}
	if err := s.guard.VerifyOwnershipOrAdmin(c, r.UserID); err != nil {
		return nil, toStatus("get routine", err)
	}
	tasks, err := s.tasks.ListByRoutine(ctx, c, id)
	if err != nil {
		return nil, toStatus("get routine", err)
	}
	m := convert.RoutineMap(r)
	items := make([]any, len(tasks))
	for i := range tasks {
		items[i] = convert.TaskMap(&tasks[i])
	}
	m["tasks"] = items
	return object(m)
}

// CreateRoutine creates a routine, with optional inline tasks, for the caller.
// Admins may create on behalf of another user via userId.
func (s *Server) CreateRoutine(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	r, err := convert.RoutineFromStruct(req)
	if err != nil {
		return nil, toStatus("create routine", err)
	}
	r.UserID = c.UserID
	if _, ok := req.GetFields()["userId"]; ok {
		uid, err := convert.ID(req, "userId")
		if err != nil {
			return nil, toStatus("create routine", err)
		}
		if err := s.guard.VerifyOwnershipOrAdmin(c, uid); err != nil {
			return nil, toStatus("create routine", err)
		}
		r.UserID = uid
	}
	if err := s.routines.Create(ctx, r); err != nil {
		return nil, toStatus("create routine", err)
	}
	return object(convert.RoutineMap(r))
}

func (s *Server) UpdateRoutine(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ID(req, "id")
	if err != nil {
		return nil, toStatus("update routine", err)
	}
	patch, err := convert.RoutinePatchFromStruct(req)
	if err != nil {
		return nil, toStatus("update routine", err)
	}
	r, err := s.routines.Update(ctx, c, id, patch)
	if err != nil {
		return nil, toStatus("update routine", err)
	}
	return object(convert.RoutineMap(r))
}

func (s *Server) DeleteRoutine(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ID(req, "id")
	if err != nil {
		return nil, toStatus("delete routine", err)
	}
	if err := s.routines.Delete(ctx, c, id); err != nil {
		return nil, toStatus("delete routine", err)
	}
	return empty()
}

// ActivateRoutine makes the routine its owner's only active one.
func (s *Server) ActivateRoutine(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ID(req, "id")
	if err != nil {
		return nil, toStatus("activate routine", err)
	}
	r, err := s.routines.Activate(ctx, c, id)
	if err != nil {
		return nil, toStatus("activate routine", err)
	}
	return object(convert.RoutineMap(r))
}

// GenerateRoutine drafts a routine from a free-form prompt. The draft is not
// saved; clients pass it to CreateRoutine.
func (s *Server) GenerateRoutine(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := caller(ctx); err != nil {
		return nil, err
	}
	prompt, err := convert.String(req, "prompt")
	if err != nil {
		return nil, toStatus("generate routine", err)
	}
	r, err := s.drafts.Draft(ctx, prompt)
	if err != nil {
		return nil, toStatus("generate routine", err)
	}
	return object(convert.DraftMap(r))
}

// --- Tasks ---

func (s *Server) ListTasks(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	rid, err := convert.ID(req, "routineId")
	if err != nil {
		return nil, toStatus("list tasks", err)
	}
	return s.taskList(ctx, c, rid, "list tasks")
}

func (s *Server) taskList(ctx context.Context, c model.Caller, routineID int64, op string) (*structpb.Struct, error) {
	list, err := s.tasks.ListByRoutine(ctx, c, routineID)
	if err != nil {
		return nil, toStatus(op, err)
	}
	out, err := convert.List("tasks", list, convert.TaskMap)
	if err != nil {
		return nil, toStatus(op, err)
	}
	return out, nil
}

func (s *Server) GetTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ID(req, "id")
	if err != nil {
		return nil, toStatus("get task", err)
	}
	t, err := s.tasks.Get(ctx, c, id)
	if err != nil {
		return nil, toStatus("get task", err)
	}
	return object(convert.TaskMap(t))
}

// CreateTask attaches the target routine for the caller, then inserts the task.
func (s *Server) CreateTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	t, pos, err := convert.TaskFromStruct(req)
	if err != nil {
		return nil, toStatus("create task", err)
	}
	if _, err := s.routines.Attach(ctx, c, t.RoutineID); err != nil {
		return nil, toStatus("create task", err)
	}
	if err := s.tasks.Create(ctx, t, pos); err != nil {
		return nil, toStatus("create task", err)
	}
	return object(convert.TaskMap(t))
}

func (s *Server) UpdateTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ID(req, "id")
	if err != nil {
		return nil, toStatus("update task", err)
	}
	patch, err := convert.TaskPatchFromStruct(req)
	if err != nil {
		return nil, toStatus("update task", err)
	}
	t, err := s.tasks.Update(ctx, c, id, patch)
	if err != nil {
		return nil, toStatus("update task", err)
	}
	return object(convert.TaskMap(t))
}

func (s *Server) DeleteTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ID(req, "id")
	if err != nil {
		return nil, toStatus("delete task", err)
	}
	if err := s.tasks.Delete(ctx, c, id); err != nil {
		return nil, toStatus("delete task", err)
	}
	return empty()
}

// ReorderTasks applies a full permutation and returns the tasks in their new order.
func (s *Server) ReorderTasks(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	rid, err := convert.ID(req, "routineId")
	if err != nil {
		return nil, toStatus("reorder tasks", err)
	}
	ids, err := convert.IDs(req, "taskIds")
	if err != nil {
		return nil, toStatus("reorder tasks", err)
	}
	if err := s.tasks.Reorder(ctx, c, rid, ids); err != nil {
		return nil, toStatus("reorder tasks", err)
	}
	return s.taskList(ctx, c, rid, "reorder tasks")
}
