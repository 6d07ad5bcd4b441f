package types

import "time"

// WorkerStatus tracks a worker's lifecycle: Starting -> Idle <-> Busy ->
// Stopped, with Failed reachable from any non-terminal state.
type WorkerStatus string

const (
	WorkerStarting WorkerStatus = "Starting"
	WorkerIdle     WorkerStatus = "Idle"
	WorkerBusy     WorkerStatus = "Busy"
	WorkerFailed   WorkerStatus = "Failed"
	WorkerStopped  WorkerStatus = "Stopped"
)

// WorkerConfig is the immutable configuration a worker is spawned with.
// A restarted worker keeps the same config under a fresh identity.
type WorkerConfig struct {
	DisplayName       string                `json:"display_name"`
	WorkingDir        string                `json:"working_dir"`
	Permission        PermissionLevel       `json:"permission"`
	Timeout           time.Duration         `json:"timeout"`
	MaxOutputBytes    int                   `json:"max_output_bytes"`
	RootConfirmation  string                `json:"-"` // never persisted or logged
}

// WorkerInfo is the read-only snapshot returned by list_workers/stats.
type WorkerInfo struct {
	ID             string       `json:"id"`
	DisplayName    string       `json:"display_name"`
	WorkingDir     string       `json:"working_dir"`
	Permission     PermissionLevel `json:"permission"`
	Status         WorkerStatus `json:"status"`
	StartedAt      time.Time    `json:"started_at"`
	LastActivity   time.Time    `json:"last_activity"`
	TasksCompleted uint64       `json:"tasks_completed"`
	Errors         uint64       `json:"errors"`
}

// WorkerResult is returned by Pool.Execute. A non-zero ExitCode or a
// populated Error means the *task* failed; the worker itself remains
// healthy unless the pool separately marks it Failed.
type WorkerResult struct {
	WorkerID string `json:"worker_id"`
	Success  bool   `json:"success"`
	Output   string `json:"output"`
	Error    string `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	ExitCode int    `json:"exit_code"`
}

// PoolStats summarizes the worker pool.
type PoolStats struct {
	TotalWorkers int `json:"total_workers"`
	IdleWorkers  int `json:"idle_workers"`
	BusyWorkers  int `json:"busy_workers"`
	FailedWorkers int `json:"failed_workers"`
}

// Utilization is the fraction of workers currently Busy.
func (s PoolStats) Utilization() float64 {
	if s.TotalWorkers == 0 {
		return 0
	}
	return float64(s.BusyWorkers) / float64(s.TotalWorkers)
}
