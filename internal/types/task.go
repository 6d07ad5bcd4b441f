package types

import "time"

// Priority orders tasks within the coordinator's queue. Higher values are
// drained first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityNormal:
		return "Normal"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// TaskStatus is the task lifecycle automaton: Pending -> Queued ->
// Assigned -> Running -> {Completed, Failed, Cancelled}. Failed may loop
// back to Pending when the coordinator mints a retry.
type TaskStatus string

const (
	TaskPending   TaskStatus = "Pending"
	TaskQueued    TaskStatus = "Queued"
	TaskAssigned  TaskStatus = "Assigned"
	TaskRunning   TaskStatus = "Running"
	TaskCompleted TaskStatus = "Completed"
	TaskFailed    TaskStatus = "Failed"
	TaskCancelled TaskStatus = "Cancelled"
)

// Task is a unit of work submitted to the coordinator. AssignedWorker and
// Error carry the payload for the Assigned/Failed states respectively,
// rather than a tagged union, matching the teacher's flat-struct-with-
// optional-fields convention (see tasklog.Event).
type Task struct {
	ID              string            `json:"id"`
	Description     string            `json:"description"`
	Priority        Priority          `json:"priority"`
	Status          TaskStatus        `json:"status"`
	ParentID        string            `json:"parent_id,omitempty"`
	ChildIDs        []string          `json:"child_ids,omitempty"`
	AssignedWorker  string            `json:"assigned_worker,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	Result          any               `json:"result,omitempty"`
	Error           string            `json:"error,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Ready reports whether every child task has reached a terminal status.
// A task with no children is always ready.
func (t *Task) Ready(lookup func(id string) (*Task, bool)) bool {
	for _, id := range t.ChildIDs {
		child, ok := lookup(id)
		if !ok {
			return false
		}
		switch child.Status {
		case TaskCompleted, TaskFailed, TaskCancelled:
			continue
		default:
			return false
		}
	}
	return true
}

// Duration reports the task's elapsed time, or ok=false if it has not
// started yet.
func (t *Task) Duration(now time.Time) (d time.Duration, ok bool) {
	if t.StartedAt == nil {
		return 0, false
	}
	end := now
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	return end.Sub(*t.StartedAt), true
}

// RetryCount reads the retry counter stashed in task metadata, defaulting
// to zero when absent or unparsable.
func (t *Task) RetryCount() int {
	v, ok := t.Metadata["retry_count"]
	if !ok {
		return 0
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// DeadLetterEntry is the terminal record for a task that exhausted its
// retry budget.
type DeadLetterEntry struct {
	Task       Task      `json:"task"`
	Reason     string    `json:"reason"`
	RetryCount int       `json:"retry_count"`
	FailedAt   time.Time `json:"failed_at"`
}

// ProgressUpdate is delivered on the coordinator's bounded progress channel.
type ProgressUpdate struct {
	TaskID    string    `json:"task_id"`
	Percent   float64   `json:"percent"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
