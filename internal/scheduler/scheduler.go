package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultPurgeSpec = "@hourly"

type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// Scheduler — периодические фоновые задачи сервиса.
type Scheduler struct {
	cron    *cron.Cron
	purger  SessionPurger
	spec    string
	timeout time.Duration
}

func New(purger SessionPurger, spec string, timeout time.Duration) *Scheduler {
	if spec == "" {
		spec = DefaultPurgeSpec
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		purger:  purger,
		spec:    spec,
		timeout: timeout,
	}
}

// Start регистрирует задачи и запускает cron; ошибка — невалидный spec.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.purgeSessions); err != nil {
		return fmt.Errorf("scheduler: register session purge %q: %w", s.spec, err)
	}
	s.cron.Start()
	slog.Info("scheduler started", slog.String("purge_spec", s.spec))
	return nil
}

// Stop ждёт завершения выполняющихся задач или отмены ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("scheduler stop: jobs still running", slog.Any("err", ctx.Err()))
	}
}

func (s *Scheduler) purgeSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.purger.PurgeExpiredSessions(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "scheduler.purgeSessions:", slog.Any("err", err))
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "expired sessions purged", slog.Int64("count", n))
	}
}
