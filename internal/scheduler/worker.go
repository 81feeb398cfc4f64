package scheduler

import (
	"context"
	"fmt"

	"principal_analytics_backend/internal/principals/service"
	"principal_analytics_backend/platform/config"
	"principal_analytics_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Refresher runs a full summary refresh.
type Refresher interface {
	RefreshAll(ctx context.Context) (service.RefreshReport, error)
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	refresher Refresher
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, refresher Refresher, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 4
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		refresher: refresher,
		log:       log,
	}

	mux.HandleFunc(TaskPrincipalsRefreshAll, w.handleRefreshAll)

	return w, nil
}

func (w *Worker) handleRefreshAll(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseRefreshAllPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	report, err := w.refresher.RefreshAll(ctx)
	if err != nil {
		return err
	}

	w.log.Info("refresh task completed",
		"reason", payload.Reason,
		"attempted", report.Attempted,
		"refreshed", report.Refreshed,
		"removed", report.Removed,
		"failed", report.Failed,
	)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
