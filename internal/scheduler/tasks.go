package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskPrincipalsRefreshAll = "principals.refresh_all"

const refreshMaxRetry = 3

// Refresh reasons.
const (
	ReasonUpstreamChanged = "upstream_changed"
)

// RefreshAllPayload must stay stable per reason: asynq deduplicates unique
// tasks on type and payload.
type RefreshAllPayload struct {
	Reason string `json:"reason"`
}

func NewRefreshAllTask(payload RefreshAllPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPrincipalsRefreshAll, data), nil
}

func ParseRefreshAllPayload(task *asynq.Task) (RefreshAllPayload, error) {
	var payload RefreshAllPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RefreshAllPayload{}, err
	}
	return payload, nil
}
