package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/labdesk/labdesk/internal/period"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPeriodClosed fans out the activity trail of a committed closure.
	TaskPeriodClosed = "period:closed"
	// TaskPeriodIntegrity checks the stored lifecycle invariants.
	TaskPeriodIntegrity = "period:integrity"
)

// NewPeriodClosedTask constructs an Asynq task for a committed closure.
func NewPeriodClosedTask(ev period.ClosedEvent) (*asynq.Task, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPeriodClosed, data), nil
}

// NewPeriodIntegrityTask constructs the scheduled integrity task.
func NewPeriodIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskPeriodIntegrity, nil)
}
