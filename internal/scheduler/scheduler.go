// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Resetter clears completion on recurring tasks.
type Resetter interface {
	ResetRecurring(ctx context.Context) (int64, error)
}

// DefaultResetSpec fires at local midnight.
const DefaultResetSpec = "0 0 * * *"

const jobTimeout = time.Minute

// Scheduler wraps a cron instance.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

// New returns a scheduler that evaluates specs in loc.
func New(loc *time.Location, log *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger{log}))),
		log:  log,
	}
}

// ScheduleReset registers the daily completion reset on spec (five-field cron syntax).
func (s *Scheduler) ScheduleReset(spec string, r Resetter) (cron.EntryID, error) {
	if spec == "" {
		spec = DefaultResetSpec
	}
	id, err := s.cron.AddFunc(spec, s.resetJob(r))
	if err != nil {
		return 0, fmt.Errorf("reset schedule %q: %w", spec, err)
	}
	return id, nil
}

func (s *Scheduler) resetJob(r Resetter) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		n, err := r.ResetRecurring(ctx)
		if err != nil {
			s.log.Error("reset recurring tasks", zap.Error(err))
			return
		}
		s.log.Info("reset recurring tasks", zap.Int64("tasks", n))
	}
}

// Next reports when entry id fires next; zero if unknown or not started.
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running jobs up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ log *zap.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Sugar().Debugw(msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Sugar().With(zap.Error(err)).Errorw(msg, kv...)
}
