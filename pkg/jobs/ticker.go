package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Enqueuer accepts jobs for asynchronous processing.
type Enqueuer interface {
	Enqueue(job Job) error
}

// Every enqueues a job of jobType immediately and then once per interval until
// ctx is cancelled. Ticks are skipped while the previous run is unfinished.
// It blocks, so callers usually run it in a goroutine.
func Every(ctx context.Context, q Enqueuer, interval time.Duration, jobType string, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		logger.Warn("periodic job disabled", zap.String("type", jobType))
		return
	}
	seq := 0
	enqueue := func(at time.Time) {
		seq++
		job := Job{ID: fmt.Sprintf("%s-%d-%d", jobType, at.Unix(), seq), Type: jobType, Key: jobType, Enqueued: at.UTC()}
		switch err := q.Enqueue(job); {
		case errors.Is(err, ErrDuplicate):
			logger.Debug("periodic job still running, tick skipped", zap.String("type", jobType))
		case err != nil:
			logger.Warn("periodic job not enqueued", zap.String("type", jobType), zap.Error(err))
		}
	}

	enqueue(time.Now())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case at := <-ticker.C:
			enqueue(at)
		}
	}
}
