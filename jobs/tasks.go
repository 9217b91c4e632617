package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDailyReport is the task type for the daily report pipeline run.
	TaskDailyReport = "report:daily"
)

// DailyReportPayload parameterises a report run. Reason records which
// trigger enqueued the task.
type DailyReportPayload struct {
	Reason string `json:"reason"`
}

// NewDailyReportTask constructs an Asynq task for one pipeline run.
func NewDailyReportTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(DailyReportPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDailyReport, data), nil
}
