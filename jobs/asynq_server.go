package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Worker wraps the Asynq server and scheduler that run the polling jobs.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Deps      Deps
	Cron      []CronRegistration
}

// NewWorker constructs a Worker instance with the standard handlers mounted.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskOrderPoll, cfg.Deps.HandleOrderPoll)
	mux.HandleFunc(TaskSitesRefresh, cfg.Deps.HandleSitesRefresh)
	mux.HandleFunc(TaskRenameSync, cfg.Deps.HandleRenameSync)

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Schedule carries the cron expressions for the standing jobs. Empty fields
// fall back to the defaults.
type Schedule struct {
	OrderPoll    string
	RenameSync   string
	SitesRefresh string
}

// StandingCron returns the standing schedule: orders every 2 minutes, rename
// maps every 5, the site registry every 10, unless overridden.
func StandingCron(s Schedule) ([]CronRegistration, error) {
	if s.OrderPoll == "" {
		s.OrderPoll = "*/2 * * * *"
	}
	if s.RenameSync == "" {
		s.RenameSync = "*/5 * * * *"
	}
	if s.SitesRefresh == "" {
		s.SitesRefresh = "*/10 * * * *"
	}
	poll, err := NewOrderPollTask(OrderPollPayload{})
	if err != nil {
		return nil, err
	}
	rename, err := NewRenameSyncTask(RenameSyncPayload{})
	if err != nil {
		return nil, err
	}
	return []CronRegistration{
		{Spec: s.OrderPoll, Task: poll, Options: []asynq.Option{asynq.Queue(QueueDefault)}},
		{Spec: s.RenameSync, Task: rename, Options: []asynq.Option{asynq.Queue(QueueDefault)}},
		{Spec: s.SitesRefresh, Task: NewSitesRefreshTask(), Options: []asynq.Option{asynq.Queue(QueueDefault)}},
	}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}
