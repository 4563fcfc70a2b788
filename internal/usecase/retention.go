package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"jarvis/internal/domain"
)

// RetentionJob periodically prunes sessions that were not updated within
// maxAge.
type RetentionJob struct {
	store    domain.SessionStore
	schedule string
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewRetentionJob creates a retention job. schedule is a standard cron
// expression or a descriptor such as "@daily".
func NewRetentionJob(store domain.SessionStore, schedule string, maxAge time.Duration, logger *slog.Logger) *RetentionJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionJob{
		store:    store,
		schedule: schedule,
		maxAge:   maxAge,
		logger:   logger,
		now:      time.Now,
	}
}

// RunOnce prunes expired sessions and returns how many were removed.
func (j *RetentionJob) RunOnce(ctx context.Context) (int, error) {
	if j.maxAge <= 0 {
		return 0, nil
	}
	n, err := j.store.Prune(ctx, j.now().Add(-j.maxAge))
	if err != nil {
		return 0, domain.WrapOp("RetentionJob.RunOnce", err)
	}
	return n, nil
}

// Start registers the job on its schedule and starts the cron runner.
func (j *RetentionJob) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return nil
	}
	if j.maxAge <= 0 {
		return fmt.Errorf("retention: max_age must be positive")
	}

	ctx, cancel := context.WithCancel(ctx)
	c := cron.New()
	_, err := c.AddFunc(j.schedule, func() {
		runCtx, done := context.WithTimeout(ctx, 5*time.Minute)
		defer done()

		start := time.Now()
		n, err := j.RunOnce(runCtx)
		if err != nil {
			j.logger.Warn("session retention failed", "error", err, "duration", time.Since(start))
			return
		}
		j.logger.Info("session retention completed", "pruned", n, "duration", time.Since(start))
	})
	if err != nil {
		cancel()
		return fmt.Errorf("retention: invalid schedule %q: %w", j.schedule, err)
	}

	c.Start()
	j.cron = c
	j.cancel = cancel
	j.logger.Info("session retention scheduled", "schedule", j.schedule, "max_age", j.maxAge)
	return nil
}

// Stop halts the cron runner and waits for a running prune to finish.
func (j *RetentionJob) Stop() {
	j.mu.Lock()
	c, cancel := j.cron, j.cancel
	j.cron, j.cancel = nil, nil
	j.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	cancel()
}
