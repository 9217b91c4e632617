package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gonzalo-wi/reporteDiferencias/internal/reports"
)

// DailyReportJob processes scheduled report runs coming from the queue.
type DailyReportJob struct {
	runner *reports.Runner
	logger *slog.Logger
}

// NewDailyReportJob constructs a DailyReportJob handler.
func NewDailyReportJob(runner *reports.Runner, logger *slog.Logger) *DailyReportJob {
	return &DailyReportJob{runner: runner, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract. A run rejected because
// another is in flight is logged and skipped, not retried: the next cron
// firing covers it. Pipeline failures are recorded and not re-raised so a
// bad day never crashes the worker.
func (j *DailyReportJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.runner == nil {
		return fmt.Errorf("daily report job not configured")
	}
	var payload DailyReportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	report, err := j.runner.Run(ctx)
	switch {
	case err == nil:
		j.logger.Info("scheduled report run completed",
			slog.String("run_id", report.ID),
			slog.String("reason", payload.Reason),
			slog.Int("differences", report.Differences),
			slog.Int("delivery_failures", report.Dispatch.Failed()))
		return nil
	case reports.IsBusy(err):
		j.logger.Warn("scheduled report run skipped, another run in progress",
			slog.String("reason", payload.Reason))
		return asynq.SkipRetry
	default:
		j.logger.Error("scheduled report run failed",
			slog.String("run_id", report.ID),
			slog.String("stage", string(report.Stage)),
			slog.Any("error", err))
		return err
	}
}
