// Command rootine-server starts the Rootine gRPC server.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/rootine/internal/authz"
	"github.com/and161185/rootine/internal/config"
	"github.com/and161185/rootine/internal/generator"
	"github.com/and161185/rootine/internal/limiter"
	"github.com/and161185/rootine/internal/migrate"
	"github.com/and161185/rootine/internal/repository"
	"github.com/and161185/rootine/internal/repository/gormstore"
	"github.com/and161185/rootine/internal/repository/postgres"
	"github.com/and161185/rootine/internal/scheduler"
	grpcserver "github.com/and161185/rootine/internal/server/grpc"
	"github.com/and161185/rootine/internal/server/ops"
	"github.com/and161185/rootine/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const (
	limitWindow   = 15 * time.Minute
	limitMaxFails = 5
	limitBlockFor = 15 * time.Minute
)

// store bundles the repositories of one backend.
type store struct {
	users    repository.UserRepository
	routines repository.RoutineRepository
	tasks    repository.TaskRepository
	lim      limiter.Limiter
	checks   []ops.Check
	close    func()
}

func main() {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("driver", cfg.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer st.close()

	// Services
	guard := authz.NewGuard(st.users)
	userSvc := service.NewUserService(st.users, guard, st.lim, []byte(cfg.JWTKey), cfg.AccessTTL, cfg.AdminEmails)
	routineSvc := service.NewRoutineService(st.routines, guard)
	taskSvc := service.NewTaskService(st.tasks, st.routines, guard)
	draftSvc := service.NewDraftService(newGenerator(cfg, logger), logger.Named("drafts"))

	// Daily completion reset
	loc, _ := cfg.Location()
	sched := scheduler.New(loc, logger.Named("scheduler"))
	if _, err := sched.ScheduleReset(cfg.ResetCron, taskSvc); err != nil {
		logger.Fatal("schedule reset", zap.Error(err))
	}
	sched.Start()

	// gRPC server with interceptors
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary([]byte(cfg.JWTKey)),
		),
	}
	if !cfg.Insecure {
		creds, err := credentials.NewServerTLSFromFile(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	}
	s := grpc.NewServer(opts...)
	grpcserver.Register(s, grpcserver.New(userSvc, routineSvc, taskSvc, draftSvc, guard))

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.Dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("tls", !cfg.Insecure))
		errCh <- s.Serve(lis)
	}()

	var opsSrv *http.Server
	if cfg.OpsAddr != "" {
		opsSrv = ops.NewServer(cfg.OpsAddr, ops.NewRouter(logger.Named("ops"), st.checks...))
		go func() {
			logger.Info("ops listening", zap.String("addr", cfg.OpsAddr))
			if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	// Wait for stop
	exit := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		exit = 1
	}

	hs.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if opsSrv != nil {
		_ = opsSrv.Shutdown(shutdownCtx)
	}
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.Stop()
	}
	sched.Stop(shutdownCtx)

	logger.Info("shutdown complete")
	if exit != 0 {
		st.close()
		_ = logger.Sync()
		os.Exit(exit)
	}
}

// newGenerator returns nil when no API key is configured, leaving
// GenerateRoutine unavailable.
func newGenerator(cfg *config.Config, log *zap.Logger) service.RoutineGenerator {
	if cfg.OpenAIKey == "" {
		log.Info("routine generation disabled")
		return nil
	}
	var opts []option.RequestOption
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	return generator.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, log.Named("openai"), opts...)
}

// openStore connects the configured backend and the login limiter.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*store, error) {
	var st *store
	switch cfg.Driver {
	case config.DriverPostgres:
		v, err := migrate.Up(ctx, cfg.DSN, log)
		if err != nil {
			return nil, err
		}
		log.Info("schema up to date", zap.Int64("version", v))
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		st = &store{
			users:    postgres.NewUserRepo(db),
			routines: postgres.NewRoutineRepo(db),
			tasks:    postgres.NewTaskRepo(db),
			lim:      limiter.NewPG(db.Pool, limitWindow, limitMaxFails, limitBlockFor),
			checks:   []ops.Check{{Name: "postgres", Ping: db.Ping}},
			close:    db.Close,
		}
	default:
		db, err := gormstore.NewDB(cfg.DSN, log)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		st = &store{
			users:    gormstore.NewUserRepo(db),
			routines: gormstore.NewRoutineRepo(db),
			tasks:    gormstore.NewTaskRepo(db),
			lim:      limiter.Nop{},
			checks:   []ops.Check{{Name: "sqlite", Ping: sqlDB.PingContext}},
			close:    func() { _ = sqlDB.Close() },
		}
	}

	if cfg.RedisURL != "" {
		rdb, err := limiter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			st.close()
			return nil, err
		}
		st.lim = limiter.NewRedis(rdb, limitWindow, limitMaxFails, limitBlockFor)
		st.checks = append(st.checks, ops.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		closeDB := st.close
		st.close = func() { _ = rdb.Close(); closeDB() }
	}
	return st, nil
}
