package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOrderPoll pulls the day's order batches from the POS for every
	// visible site.
	TaskOrderPoll = "orders:poll"
	// TaskSitesRefresh refreshes the site registry from the POS.
	TaskSitesRefresh = "sites:refresh"
	// TaskRenameSync re-applies the stored rename maps for today.
	TaskRenameSync = "rename:sync"
)

// OrderPollPayload narrows a poll run; empty means all visible sites today.
type OrderPollPayload struct {
	Sites []string `json:"sites,omitempty"`
	Day   string   `json:"day,omitempty"`
}

// NewOrderPollTask constructs the polling task.
func NewOrderPollTask(payload OrderPollPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderPoll, data), nil
}

// NewSitesRefreshTask constructs the registry refresh task.
func NewSitesRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskSitesRefresh, nil)
}

// RenameSyncPayload scopes a rename re-application run.
type RenameSyncPayload struct {
	Day string `json:"day,omitempty"`
}

// NewRenameSyncTask constructs the rename sync task.
func NewRenameSyncTask(payload RenameSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRenameSync, data), nil
}
