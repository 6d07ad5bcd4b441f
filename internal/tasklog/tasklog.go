// Package tasklog provides per-task structured event logging for the
// execution fabric.
//
// Each task gets one JSONL file in a configurable directory, bracketed by
// a task_begin and task_end event. Between them it records every
// worker-pool assignment, retry, progress update, and skill invocation
// belonging to that task — the substrate an operator or the audit tap
// reads to reconstruct what actually happened to a task end to end.
//
// Design constraints carried over from the teacher's registry pattern:
//   - All TaskLog methods are nil-safe (no-op on nil receiver) so callers
//     don't need nil checks before every log call.
//   - Registry is the sole owner of JSONL persistence; no other package
//     opens these files directly.
//   - The engine (internal/engine) opens a log via Registry.Open when a
//     task is submitted and closes it via Registry.Close on completion or
//     dead-lettering.
package tasklog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventKind labels a single structured event in the task log.
type EventKind string

const (
	KindTaskBegin     EventKind = "task_begin"
	KindTaskEnd       EventKind = "task_end"
	KindAssigned      EventKind = "assigned"
	KindRetry         EventKind = "retry"
	KindDeadLettered  EventKind = "dead_lettered"
	KindProgress      EventKind = "progress"
	KindSkillInvoked  EventKind = "skill_invoked"
	KindWorkerOutput  EventKind = "worker_output"
)

// Event is one JSONL line in the task log. Fields are omitempty so each
// event only serializes data relevant to its kind.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp string    `json:"ts"`

	TaskID      string `json:"task_id,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	ElapsedMs   int64  `json:"elapsed_ms,omitempty"`

	WorkerID   string `json:"worker_id,omitempty"`
	RetryCount int    `json:"retry_count,omitempty"`
	Reason     string `json:"reason,omitempty"`

	Percent int    `json:"percent,omitempty"`
	Message string `json:"message,omitempty"`

	SkillName string `json:"skill_name,omitempty"`
	Success   bool   `json:"success,omitempty"`

	Output string `json:"output,omitempty"`
}

// TaskLog is a handle for writing structured events for one task.
//
// Concurrent writes are safe (mutex-protected). All methods are nil-safe.
type TaskLog struct {
	taskID  string
	started time.Time
	mu      sync.Mutex
	f       *os.File
}

// Registry maps task IDs to open TaskLogs and is the sole authority for
// creating and closing task log files.
type Registry struct {
	dir  string
	log  *zap.Logger
	mu   sync.Mutex
	logs map[string]*TaskLog
}

// NewRegistry creates a Registry that writes one JSONL file per task
// under dir.
func NewRegistry(dir string, log *zap.Logger) *Registry {
	return &Registry{dir: dir, log: log, logs: make(map[string]*TaskLog)}
}

// Open creates a new TaskLog for taskID, writes a task_begin event, and
// registers it. Idempotent: a log already open for taskID is returned
// unchanged (e.g. a retried task reuses its original log).
func (r *Registry) Open(taskID, description string) *TaskLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tl, ok := r.logs[taskID]; ok {
		return tl
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.log.Warn("could not create tasklog dir", zap.String("dir", r.dir), zap.Error(err))
		return nil
	}
	path := filepath.Join(r.dir, taskID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		r.log.Warn("could not open tasklog file", zap.String("path", path), zap.Error(err))
		return nil
	}

	tl := &TaskLog{taskID: taskID, started: time.Now(), f: f}
	r.logs[taskID] = tl
	tl.write(Event{Kind: KindTaskBegin, TaskID: taskID, Description: description})
	return tl
}

// Get returns the TaskLog for taskID, or nil if not found. Nil is safe to
// pass to all TaskLog methods.
func (r *Registry) Get(taskID string) *TaskLog {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs[taskID]
}

// Close writes a task_end event, flushes and closes the file, and removes
// the entry from the registry. Safe to call with a nil *Registry or an
// unknown taskID.
func (r *Registry) Close(taskID, status string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	tl, ok := r.logs[taskID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.logs, taskID)
	r.mu.Unlock()

	tl.mu.Lock()
	elapsed := time.Since(tl.started).Milliseconds()
	tl.mu.Unlock()

	tl.write(Event{Kind: KindTaskEnd, TaskID: taskID, Status: status, ElapsedMs: elapsed})

	tl.mu.Lock()
	if tl.f != nil {
		_ = tl.f.Close()
		tl.f = nil
	}
	tl.mu.Unlock()
}

// Assigned writes an assigned event recording which worker picked up the task.
func (tl *TaskLog) Assigned(workerID string) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindAssigned, WorkerID: workerID})
}

// Retry writes a retry event when a failed task is re-enqueued.
func (tl *TaskLog) Retry(retryCount int, reason string) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindRetry, RetryCount: retryCount, Reason: reason})
}

// DeadLettered writes a dead_lettered event once retries are exhausted.
func (tl *TaskLog) DeadLettered(retryCount int, reason string) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindDeadLettered, RetryCount: retryCount, Reason: reason})
}

// Progress writes a progress event.
func (tl *TaskLog) Progress(percent int, message string) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindProgress, Percent: percent, Message: message})
}

// SkillInvoked writes a skill_invoked event.
func (tl *TaskLog) SkillInvoked(skillName string, success bool) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindSkillInvoked, SkillName: skillName, Success: success})
}

// WorkerOutput writes a worker_output event, truncating to a safe length
// the way feedback.Format truncates long error text.
func (tl *TaskLog) WorkerOutput(workerID, output string) {
	if tl == nil {
		return
	}
	if len(output) > 4096 {
		output = output[:4096] + "…"
	}
	tl.write(Event{Kind: KindWorkerOutput, WorkerID: workerID, Output: output})
}

// write appends one JSON line to the task log file, mutex-protected.
func (tl *TaskLog) write(e Event) {
	e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	e.TaskID = tl.taskID
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.f == nil {
		return
	}
	_, _ = fmt.Fprintf(tl.f, "%s\n", data)
}
