// Package workerpool implements the Worker Pool of spec §4.2: a table
// of AI-CLI-backed process handles, each carrying its own permission
// level, with a background health loop that evicts idle workers and
// restarts failed ones. Grounded on
// original_source/src/worker_pool.rs.
package workerpool

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kaelvex/fabricd/internal/types"
)

// worker is one pool entry. Its own mutex guards mutable fields so the
// pool-wide lock is only ever held for map lookup/insert/remove, per
// spec §4.2's concurrency discipline.
type worker struct {
	mu sync.Mutex

	id         string
	config     types.WorkerConfig
	status     types.WorkerStatus
	startedAt  time.Time
	lastActive time.Time
	completed  uint64
	errors     uint64
}

func newWorker(config types.WorkerConfig) *worker {
	now := time.Now()
	return &worker{
		id:         uuid.NewString(),
		config:     config,
		status:     types.WorkerStarting,
		startedAt:  now,
		lastActive: now,
	}
}

func (w *worker) info() types.WorkerInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return types.WorkerInfo{
		ID:             w.id,
		DisplayName:    w.config.DisplayName,
		WorkingDir:     w.config.WorkingDir,
		Permission:     w.config.Permission,
		Status:         w.status,
		StartedAt:      w.startedAt,
		LastActivity:   w.lastActive,
		TasksCompleted: w.completed,
		Errors:         w.errors,
	}
}

// tryClaim flips an Idle worker to Busy non-blockingly. Returns false if
// the worker's lock is contended or it isn't Idle — the caller moves on
// to the next candidate rather than blocking the whole pool (spec
// §4.2's get_idle_worker contract; sync.Mutex.TryLock is the Go-idiomatic
// stand-in for the non-blocking per-worker lock attempt the spec calls
// for, since Go has no language-level try-lock primitive).
func (w *worker) tryClaim() bool {
	if !w.mu.TryLock() {
		return false
	}
	if w.status != types.WorkerIdle {
		w.mu.Unlock()
		return false
	}
	w.status = types.WorkerBusy
	w.mu.Unlock()
	return true
}

func (w *worker) release(success bool, becameFailed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastActive = time.Now()
	if becameFailed {
		w.status = types.WorkerFailed
		w.errors++
		return
	}
	w.status = types.WorkerIdle
	if success {
		w.completed++
	} else {
		w.errors++
	}
}

func (w *worker) markIdle() {
	w.mu.Lock()
	w.status = types.WorkerIdle
	w.lastActive = time.Now()
	w.mu.Unlock()
}

func (w *worker) snapshotStatus() (types.WorkerStatus, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status, w.lastActive
}

// ErrPoolFull is returned by SpawnWorker when the pool is at MaxWorkers.
var ErrPoolFull = fmt.Errorf("workerpool: pool full")

// ErrNoIdleWorker is returned by Execute when no Idle worker is available.
var ErrNoIdleWorker = fmt.Errorf("workerpool: no idle worker available")

// ErrRootConfirmationRequired is returned by SpawnWorker for a
// Root-level request whose confirmation token doesn't match (resolves
// spec's Open Question on the out-of-band Root confirmation signal).
var ErrRootConfirmationRequired = fmt.Errorf("workerpool: root-level spawn requires a valid confirmation token")

// ErrWorkerNotFound is returned by KillWorker for an unknown id.
var ErrWorkerNotFound = fmt.Errorf("workerpool: worker not found")
