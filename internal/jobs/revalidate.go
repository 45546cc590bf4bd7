package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"deptportal/portal/internal/logging"
)

const DefaultRevalidateInterval = 5 * time.Minute

// Job is a running periodic task. Stop cancels it. Done is closed once the
// goroutine has exited.
type Job struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (j *Job) Stop() {
	if j == nil {
		return
	}
	j.once.Do(j.cancel)
}

func (j *Job) Done() <-chan struct{} {
	return j.done
}

// StartRevalidationJob calls fn every interval until ctx is done or the job
// is stopped. Each tick gets its own timeout when timeout > 0.
func StartRevalidationJob(ctx context.Context, interval, timeout time.Duration, logger *zap.Logger, fn func(context.Context)) *Job {
	logger = logging.OrNop(logger)
	if interval <= 0 {
		interval = DefaultRevalidateInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	job := &Job{cancel: cancel, done: make(chan struct{})}
	ticker := time.NewTicker(interval)
	go func() {
		defer close(job.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Debug("revalidation job stopped")
				return
			case <-ticker.C:
				tickCtx, cancelTick := ctx, context.CancelFunc(func() {})
				if timeout > 0 {
					tickCtx, cancelTick = context.WithTimeout(ctx, timeout)
				}
				fn(tickCtx)
				cancelTick()
			}
		}
	}()
	return job
}
