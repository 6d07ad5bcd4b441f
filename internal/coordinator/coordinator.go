// Package coordinator implements the Task Coordinator of spec §4.1: a
// four-lane priority queue gated by its own circuit breaker, lexical
// task decomposition, and retry/dead-letter handling on failure. The
// Rust source (original_source/src/coordinator.rs) is an import-only
// stub, so this package is grounded directly on spec §4.1's prose
// contract, following internal/recovery's already-ported breaker for
// the admission gate and the teacher's tasklog registry for the
// task table's identity/bookkeeping conventions.
package coordinator

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kaelvex/fabricd/internal/recovery"
	"github.com/kaelvex/fabricd/internal/types"
)

// Config configures the coordinator's retry budget and progress buffer.
type Config struct {
	MaxRetries         int
	ProgressBufferSize int
	Breaker            recovery.BreakerConfig
}

func (c Config) withDefaults() Config {
	if c.ProgressBufferSize <= 0 {
		c.ProgressBufferSize = 256
	}
	return c
}

// ErrNotFound is returned for operations against an unknown task id.
var ErrNotFound = fmt.Errorf("coordinator: task not found")

// ErrInvalidTransition is returned when an operation doesn't apply to
// the task's current status.
var ErrInvalidTransition = fmt.Errorf("coordinator: invalid state transition")

// Coordinator owns the task table and its four priority queues.
type Coordinator struct {
	config  Config
	log     *zap.Logger
	breaker *recovery.CircuitBreaker

	mu     sync.Mutex
	tasks  map[string]*types.Task
	queues map[types.Priority][]string
	dlq    []types.DeadLetterEntry

	progress chan types.ProgressUpdate
}

// New builds a Coordinator with its own independent circuit breaker
// (distinct from any recovery.Strategy breaker elsewhere in the
// system, per spec §4.1).
func New(config Config, log *zap.Logger) *Coordinator {
	config = config.withDefaults()
	return &Coordinator{
		config:   config,
		log:      log,
		breaker:  recovery.NewCircuitBreaker("coordinator-admission", config.Breaker),
		tasks:    map[string]*types.Task{},
		queues:   map[types.Priority][]string{},
		progress: make(chan types.ProgressUpdate, config.ProgressBufferSize),
	}
}

// Progress exposes the bounded progress channel for subscribers (e.g.
// the bridge). Updates are dropped, not blocked, when the channel is
// full (lossy telemetry, per spec §4.1).
func (c *Coordinator) Progress() <-chan types.ProgressUpdate { return c.progress }

// Submit creates a new Pending task and enqueues it, returning its id.
func (c *Coordinator) Submit(description string, priority types.Priority) string {
	task := &types.Task{
		ID:          uuid.NewString(),
		Description: description,
		Priority:    priority,
		Status:      types.TaskPending,
		CreatedAt:   time.Now(),
		Metadata:    map[string]string{},
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks[task.ID] = task
	c.enqueueLocked(task)
	return task.ID
}

func (c *Coordinator) enqueueLocked(task *types.Task) {
	task.Status = types.TaskQueued
	c.queues[task.Priority] = append(c.queues[task.Priority], task.ID)
}

// GetNextTask consults the admission gate, then drains the highest
// non-empty priority lane (Critical down to Low).
func (c *Coordinator) GetNextTask() (*types.Task, bool) {
	if !c.breaker.Allow() {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range []types.Priority{types.PriorityCritical, types.PriorityHigh, types.PriorityNormal, types.PriorityLow} {
		lane := c.queues[p]
		if len(lane) == 0 {
			continue
		}
		id := lane[0]
		c.queues[p] = lane[1:]
		return c.tasks[id], true
	}
	return nil, false
}

// Assign records which worker a task was handed to.
func (c *Coordinator) Assign(taskID, workerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if task.Status != types.TaskQueued {
		return ErrInvalidTransition
	}
	task.Status = types.TaskAssigned
	task.AssignedWorker = workerID
	return nil
}

// Start transitions an Assigned task to Running.
func (c *Coordinator) Start(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if task.Status != types.TaskAssigned {
		return ErrInvalidTransition
	}
	now := time.Now()
	task.Status = types.TaskRunning
	task.StartedAt = &now
	return nil
}

// Complete marks a task Completed and records a breaker success.
func (c *Coordinator) Complete(taskID string, result any) error {
	c.mu.Lock()
	task, ok := c.tasks[taskID]
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}
	now := time.Now()
	task.Status = types.TaskCompleted
	task.CompletedAt = &now
	task.Result = result
	c.mu.Unlock()

	c.breaker.RecordSuccess()
	return nil
}

// Fail records a breaker failure, then either re-enqueues the task as a
// retry (incrementing retry_count) or moves it to the dead-letter queue
// once retry_count reaches MaxRetries.
func (c *Coordinator) Fail(taskID string, failure error) error {
	c.mu.Lock()
	task, ok := c.tasks[taskID]
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}

	reason := ""
	if failure != nil {
		reason = failure.Error()
	}
	retryCount := task.RetryCount()

	if retryCount < c.config.MaxRetries {
		if task.Metadata == nil {
			task.Metadata = map[string]string{}
		}
		task.Metadata["retry_count"] = strconv.Itoa(retryCount + 1)
		task.Status = types.TaskPending
		task.Error = reason
		c.enqueueLocked(task)
		c.mu.Unlock()
		c.breaker.RecordFailure()
		return nil
	}

	task.Status = types.TaskFailed
	task.Error = reason
	entry := types.DeadLetterEntry{Task: *task, Reason: reason, RetryCount: retryCount, FailedAt: time.Now()}
	c.dlq = append(c.dlq, entry)
	c.mu.Unlock()

	c.breaker.RecordFailure()
	c.log.Warn("task moved to dead-letter queue", zap.String("task_id", taskID), zap.Int("retry_count", retryCount), zap.String("reason", reason))
	return nil
}

// Cancel marks any non-terminal task Cancelled. Returns false if the
// task was already terminal or doesn't exist.
func (c *Coordinator) Cancel(taskID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.tasks[taskID]
	if !ok {
		return false, ErrNotFound
	}
	switch task.Status {
	case types.TaskCompleted, types.TaskFailed, types.TaskCancelled:
		return false, nil
	}
	task.Status = types.TaskCancelled
	return true, nil
}

// UpdateProgress delivers a progress update on the bounded channel,
// dropping it silently if the channel is full.
func (c *Coordinator) UpdateProgress(taskID string, percent float64, message string) {
	update := types.ProgressUpdate{TaskID: taskID, Percent: percent, Message: message, Timestamp: time.Now()}
	select {
	case c.progress <- update:
	default:
		c.log.Debug("dropped progress update, channel full", zap.String("task_id", taskID))
	}
}

// GetTask returns a snapshot of the named task.
func (c *Coordinator) GetTask(taskID string) (*types.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.tasks[taskID]
	if !ok {
		return nil, false
	}
	clone := *task
	return &clone, true
}

// QueueDepth returns the total number of tasks waiting across all four
// priority lanes, used by the Remote Bridge's health report.
func (c *Coordinator) QueueDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, lane := range c.queues {
		n += len(lane)
	}
	return n
}

// DeadLetters returns every dead-lettered task.
func (c *Coordinator) DeadLetters() []types.DeadLetterEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.DeadLetterEntry, len(c.dlq))
	copy(out, c.dlq)
	return out
}

// Decompose performs the purely lexical pre-pass of spec §4.1: split on
// "and" for parallel subtasks, or on "then" for sequential ones,
// otherwise return the description as a single task. This is
// deliberately brittle (a literal substring split, no real language
// parsing) — the spec flags the limitation rather than asking for a
// fix, so we keep it (see DESIGN.md Open Question 2).
func (c *Coordinator) Decompose(description string) []types.Task {
	if parts := splitConnector(description, " and "); len(parts) > 1 {
		tasks := make([]types.Task, len(parts))
		for i, p := range parts {
			tasks[i] = types.Task{Description: strings.TrimSpace(p), Priority: types.PriorityNormal, Status: types.TaskPending}
		}
		return tasks
	}
	if parts := splitConnector(description, " then "); len(parts) > 1 {
		tasks := make([]types.Task, len(parts))
		for i, p := range parts {
			tasks[i] = types.Task{
				Description: strings.TrimSpace(p),
				Priority:    types.PriorityNormal,
				Status:      types.TaskPending,
				Metadata:    map[string]string{"sequence_index": strconv.Itoa(i)},
			}
		}
		return tasks
	}
	return []types.Task{{Description: description, Priority: types.PriorityNormal, Status: types.TaskPending}}
}

func splitConnector(s, connector string) []string {
	if !strings.Contains(s, connector) {
		return nil
	}
	return strings.Split(s, connector)
}
