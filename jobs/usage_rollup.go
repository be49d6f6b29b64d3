package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// UsageFlusher drains advisory API-call counters into durable storage.
// Satisfied by credits.Service.
type UsageFlusher interface {
	FlushAPICalls(ctx context.Context) error
}

// NewUsageRollupTask constructs the periodic rollup task. It carries no
// payload; the flusher scans every counter on each run.
func NewUsageRollupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeUsageRollup, nil)
}

// UsageRollupHandler returns the handler for TaskTypeUsageRollup tasks.
func UsageRollupHandler(flusher UsageFlusher, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := flusher.FlushAPICalls(ctx); err != nil {
			if logger != nil {
				logger.Error("usage rollup failed", slog.Any("error", err))
			}
			return err
		}
		if logger != nil {
			logger.Info("usage rollup complete")
		}
		return nil
	}
}
