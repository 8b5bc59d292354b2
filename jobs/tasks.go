package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/tramitex/tramitex/internal/alerts"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueScan sweeps open cases for states held past their limit.
	TaskOverdueScan = "alerts:overdue_scan"
)

// NewOverdueScanTask constructs the nightly overdue-scan task.
func NewOverdueScanTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueScan, nil)
}

// NewOverdueScanHandler returns the handler that runs the overdue scan.
func NewOverdueScanHandler(service *alerts.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		overdue, err := service.Scan(ctx)
		if err != nil {
			logger.Error("overdue scan failed", slog.Any("error", err))
			return err
		}
		logger.Info("overdue scan finished", slog.Int("overdue", overdue))
		return nil
	}
}
