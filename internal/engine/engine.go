// Package engine wires the Task Coordinator, Worker Pool, and Preflight
// Checker into a single bridge.Executor: it submits requests as tasks,
// runs a background dispatch loop that drains the coordinator's queue
// onto the pool, and republishes every lifecycle transition onto the
// event bus and the per-task audit log. Grounded on the teacher's
// cmd/agsh/main.go REPL loop, which ran the same preflight-then-dispatch
// sequence for one interactive command at a time; this package does it
// for concurrent bridge requests instead, with the coordinator's queue
// as the hand-off point between submission and dispatch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kaelvex/fabricd/internal/bus"
	"github.com/kaelvex/fabricd/internal/coordinator"
	"github.com/kaelvex/fabricd/internal/feedback"
	"github.com/kaelvex/fabricd/internal/preflight"
	"github.com/kaelvex/fabricd/internal/sandbox"
	"github.com/kaelvex/fabricd/internal/skills"
	"github.com/kaelvex/fabricd/internal/tasklog"
	"github.com/kaelvex/fabricd/internal/types"
	"github.com/kaelvex/fabricd/internal/workerpool"
)

// dispatchInterval is how often the background loop polls the
// coordinator's queue for admissible work.
const dispatchInterval = 50 * time.Millisecond

// Config configures the engine's request handling.
type Config struct {
	Priority     types.Priority
	WorkerConfig types.WorkerConfig
}

// engineError is a minimal types.CategorizedError for failures the
// engine detects itself (as opposed to ones surfaced by a wrapped
// component). Its message is always a fixed, non-leaking string — the
// bridge never echoes err.Error() for a categorized error, but callers
// of the engine directly (e.g. a future CLI) may print it, so it still
// avoids embedding request content.
type engineError struct {
	cat types.ErrorCategory
	msg string
}

func (e *engineError) Error() string                     { return e.msg }
func (e *engineError) Category() types.ErrorCategory      { return e.cat }

// Engine is the Task Coordinator / Worker Pool pairing adapted to the
// bridge.Executor interface (see internal/bridge.Executor).
type Engine struct {
	config    Config
	coord     *coordinator.Coordinator
	pool      *workerpool.Pool
	preflight *preflight.Checker
	bus       *bus.Bus
	tasklogs  *tasklog.Registry
	skills    *skills.Registry
	sandbox   *sandbox.Sandbox
	log       *zap.Logger

	mu      sync.Mutex
	waiters map[string]chan types.Task

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds an Engine over already-constructed components. skillRegistry
// and box may be nil if this engine instance never invokes skills
// directly (e.g. a test double exercising only the task path).
func New(config Config, coord *coordinator.Coordinator, pool *workerpool.Pool, pf *preflight.Checker, b *bus.Bus, logs *tasklog.Registry, skillRegistry *skills.Registry, box *sandbox.Sandbox, log *zap.Logger) *Engine {
	return &Engine{
		config:    config,
		coord:     coord,
		pool:      pool,
		preflight: pf,
		bus:       b,
		tasklogs:  logs,
		skills:    skillRegistry,
		sandbox:   box,
		log:       log,
		waiters:   map[string]chan types.Task{},
		stopCh:    make(chan struct{}),
	}
}

// InvokeSkill runs an installed skill directly (outside the task
// lifecycle), records the outcome against the skill's usage counters,
// and publishes a SkillInvoked event.
func (e *Engine) InvokeSkill(ctx context.Context, name string, params map[string]any, level types.PermissionLevel) (*types.SkillExecutionResult, error) {
	installed, err := e.skills.Get(name)
	if err != nil {
		return nil, err
	}

	result, err := e.sandbox.Execute(ctx, &installed.Definition, params, level)
	success := err == nil && result != nil && result.Success
	if recErr := e.skills.RecordInvocation(name, success); recErr != nil {
		e.log.Warn("could not record skill invocation", zap.String("skill", name), zap.Error(recErr))
	}
	e.bus.Publish(types.Event{
		Timestamp: time.Now(),
		Component: types.ComponentSkills,
		Type:      types.EventSkillInvoked,
		Payload:   map[string]any{"skill": name, "success": success},
	})
	return result, err
}

// Start launches the background dispatch loop.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.dispatchLoop(ctx)
}

// Stop halts the dispatch loop and waits for in-flight dispatches to
// finish.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

func (e *Engine) dispatchLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			task, ok := e.coord.GetNextTask()
			if !ok {
				continue
			}
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.dispatch(ctx, task)
			}()
		}
	}
}

// ensureWorker spawns a worker from the engine's configured template if
// the pool currently has none, or if workingDir overrides the default
// (a per-request working directory gets its own worker).
func (e *Engine) ensureWorker(workingDir string) error {
	if workingDir == "" && e.pool.Stats().TotalWorkers > 0 {
		return nil
	}
	cfg := e.config.WorkerConfig
	if workingDir != "" {
		cfg.WorkingDir = workingDir
	}
	_, err := e.pool.SpawnWorker(cfg)
	if err != nil && !errors.Is(err, workerpool.ErrPoolFull) {
		return err
	}
	return nil
}

// submit runs the shared preflight + worker-provisioning + coordinator
// submission sequence, returning the new task's id and a waiter channel
// that receives the task's terminal snapshot.
func (e *Engine) submit(ctx context.Context, req types.ExecuteRequest) (string, chan types.Task, error) {
	pf := e.preflight.CheckForCommand(ctx, req.Prompt)
	if !pf.Ready {
		return "", nil, &engineError{cat: types.ErrResourceExhausted, msg: pf.FormatError()}
	}

	if err := e.ensureWorker(req.WorkingDir); err != nil {
		return "", nil, &engineError{cat: types.ErrInternal, msg: "could not provision a worker"}
	}

	taskID := e.coord.Submit(req.Prompt, e.config.Priority)
	e.tasklogs.Open(taskID, req.Prompt)
	e.bus.Publish(types.Event{
		Timestamp: time.Now(),
		Component: types.ComponentCoordinator,
		Type:      types.EventTaskSubmitted,
		Payload:   map[string]string{"task_id": taskID},
	})

	wait := make(chan types.Task, 1)
	e.mu.Lock()
	e.waiters[taskID] = wait
	e.mu.Unlock()

	return taskID, wait, nil
}

func (e *Engine) clearWaiter(taskID string) {
	e.mu.Lock()
	delete(e.waiters, taskID)
	e.mu.Unlock()
}

// Execute submits req as a task and blocks until it reaches a terminal
// state (Completed, or Failed after the coordinator's retry budget is
// exhausted), adapting bridge.Executor.
func (e *Engine) Execute(ctx context.Context, req types.ExecuteRequest) (types.UnaryResult, error) {
	taskID, wait, err := e.submit(ctx, req)
	if err != nil {
		return types.UnaryResult{}, err
	}
	defer e.clearWaiter(taskID)

	select {
	case <-ctx.Done():
		e.coord.Cancel(taskID)
		return types.UnaryResult{}, ctx.Err()
	case final := <-wait:
		return toUnaryResult(final), nil
	}
}

// ExecuteStream submits req and forwards status events as the task
// moves through the coordinator's queue, ending with exactly one
// EventFinal, adapting bridge.Executor.
func (e *Engine) ExecuteStream(ctx context.Context, req types.ExecuteRequest, events chan<- types.StreamEvent) error {
	taskID, wait, err := e.submit(ctx, req)
	if err != nil {
		result := types.UnaryResult{Error: err.Error()}
		events <- types.StreamEvent{Kind: types.EventFinal, Final: &result}
		return nil
	}
	defer e.clearWaiter(taskID)

	events <- types.StreamEvent{Kind: types.EventStatus, Stage: "queued"}
	progress := e.coord.Progress()

	for {
		select {
		case <-ctx.Done():
			e.coord.Cancel(taskID)
			result := types.UnaryResult{Error: "deadline exceeded"}
			events <- types.StreamEvent{Kind: types.EventFinal, Final: &result}
			return nil
		case upd := <-progress:
			if upd.TaskID != taskID {
				continue
			}
			events <- types.StreamEvent{Kind: types.EventStatus, Stage: "progress", Detail: upd.Message}
		case final := <-wait:
			result := toUnaryResult(final)
			events <- types.StreamEvent{Kind: types.EventFinal, Final: &result}
			return nil
		}
	}
}

// Health reports pool size and queue depth, adapting bridge.Executor.
func (e *Engine) Health() types.HealthStatus {
	st := e.pool.Stats()
	depth := e.coord.QueueDepth()
	return types.HealthStatus{
		Ready:       st.TotalWorkers > 0,
		WorkerCount: st.TotalWorkers,
		QueueDepth:  depth,
	}
}

// dispatch runs one admitted task to completion (a single attempt — a
// requeued retry is picked up again on a later GetNextTask call) and
// notifies its waiter once it reaches a terminal state.
func (e *Engine) dispatch(ctx context.Context, task *types.Task) {
	if err := e.coord.Assign(task.ID, "pool"); err != nil {
		e.log.Warn("assign failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	e.bus.Publish(types.Event{Timestamp: time.Now(), Component: types.ComponentWorkerPool, Type: types.EventTaskAssigned, Payload: map[string]string{"task_id": task.ID}})

	if err := e.coord.Start(task.ID); err != nil {
		e.log.Warn("start failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	e.bus.Publish(types.Event{Timestamp: time.Now(), Component: types.ComponentWorkerPool, Type: types.EventTaskStarted, Payload: map[string]string{"task_id": task.ID}})

	result, err := e.pool.Execute(ctx, task, "")
	if err != nil {
		e.fail(task.ID, err)
		return
	}
	if tl := e.tasklogs.Get(task.ID); tl != nil {
		tl.Assigned(result.WorkerID)
		tl.WorkerOutput(result.WorkerID, result.Output)
	}

	if result.Success {
		e.complete(task.ID, result.Output)
		return
	}
	e.fail(task.ID, fmt.Errorf("%s", result.Error))
}

func (e *Engine) complete(taskID, output string) {
	_ = e.coord.Complete(taskID, output)
	e.bus.Publish(types.Event{Timestamp: time.Now(), Component: types.ComponentCoordinator, Type: types.EventTaskCompleted, Payload: map[string]string{"task_id": taskID}})
	e.tasklogs.Close(taskID, "completed")
	e.notify(taskID)
}

func (e *Engine) fail(taskID string, cause error) {
	_ = e.coord.Fail(taskID, cause)
	task, ok := e.coord.GetTask(taskID)
	if !ok {
		return
	}

	if task.Status == types.TaskQueued {
		// Requeued as a retry; the coordinator will hand it back out on
		// a later GetNextTask. Not terminal, so no waiter notification.
		if tl := e.tasklogs.Get(taskID); tl != nil {
			tl.Retry(task.RetryCount(), task.Error)
		}
		e.bus.Publish(types.Event{Timestamp: time.Now(), Component: types.ComponentCoordinator, Type: types.EventTaskFailed, Payload: map[string]string{"task_id": taskID, "reason": task.Error}})
		return
	}

	if tl := e.tasklogs.Get(taskID); tl != nil {
		tl.DeadLettered(task.RetryCount(), task.Error)
	}
	e.bus.Publish(types.Event{Timestamp: time.Now(), Component: types.ComponentCoordinator, Type: types.EventTaskDeadLettered, Payload: map[string]string{"task_id": taskID, "reason": task.Error}})
	e.tasklogs.Close(taskID, "dead_lettered")
	e.notify(taskID)
}

func (e *Engine) notify(taskID string) {
	task, ok := e.coord.GetTask(taskID)
	if !ok {
		return
	}
	e.mu.Lock()
	wait, ok := e.waiters[taskID]
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case wait <- *task:
	default:
	}
}

func toUnaryResult(task types.Task) types.UnaryResult {
	result := types.UnaryResult{Success: task.Status == types.TaskCompleted}
	duration, _ := task.Duration(time.Now())
	result.DurationMs = duration.Milliseconds()

	var rawOutput string
	if result.Success {
		if text, ok := task.Result.(string); ok {
			rawOutput = text
		}
	} else {
		result.Error = task.Error
	}

	result.Text = feedback.Format(feedback.Summary{
		TaskID:    task.ID,
		Success:   result.Success,
		Duration:  duration,
		Actions:   feedback.Parse(rawOutput, 0),
		ErrorText: task.Error,
	})
	return result
}
