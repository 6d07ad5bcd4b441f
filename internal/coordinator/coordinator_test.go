package coordinator

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kaelvex/fabricd/internal/recovery"
	"github.com/kaelvex/fabricd/internal/types"
)

func newTestCoordinator() *Coordinator {
	return New(Config{MaxRetries: 2, Breaker: recovery.BreakerConfig{
		FailureThreshold: 3, SuccessThreshold: 1, OpenDuration: time.Hour, FailureWindow: time.Hour,
	}}, zap.NewNop())
}

// GetNextTask drains Critical before High before Normal before Low.
func TestCoordinator_PriorityOrdering(t *testing.T) {
	c := newTestCoordinator()
	c.Submit("low task", types.PriorityLow)
	c.Submit("critical task", types.PriorityCritical)
	c.Submit("normal task", types.PriorityNormal)

	task, ok := c.GetNextTask()
	if !ok || task.Description != "critical task" {
		t.Fatalf("got %+v, want critical task first", task)
	}
}

// A freshly submitted task is Queued; Assign then Start advance it
// through the lifecycle.
func TestCoordinator_LifecycleTransitions(t *testing.T) {
	c := newTestCoordinator()
	id := c.Submit("do work", types.PriorityNormal)

	task, _ := c.GetTask(id)
	if task.Status != types.TaskQueued {
		t.Fatalf("got status %s, want Queued", task.Status)
	}

	if err := c.Assign(id, "worker-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := c.Start(id); err != nil {
		t.Fatalf("start: %v", err)
	}
	task, _ = c.GetTask(id)
	if task.Status != types.TaskRunning || task.AssignedWorker != "worker-1" {
		t.Fatalf("unexpected task state: %+v", task)
	}

	if err := c.Complete(id, "done"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	task, _ = c.GetTask(id)
	if task.Status != types.TaskCompleted {
		t.Fatalf("got status %s, want Completed", task.Status)
	}
}

// Fail below MaxRetries re-enqueues the task (back to Queued) with an
// incremented retry_count instead of dead-lettering it.
func TestCoordinator_FailRetries(t *testing.T) {
	c := newTestCoordinator()
	id := c.Submit("flaky", types.PriorityNormal)
	_ = c.Assign(id, "w1")
	_ = c.Start(id)

	if err := c.Fail(id, errors.New("boom")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	task, _ := c.GetTask(id)
	if task.Status != types.TaskQueued {
		t.Fatalf("got status %s, want Queued (re-enqueued retry)", task.Status)
	}
	if task.RetryCount() != 1 {
		t.Fatalf("got retry_count %d, want 1", task.RetryCount())
	}
	if len(c.DeadLetters()) != 0 {
		t.Fatal("expected no dead letters before exhausting retries")
	}
}

// Fail at MaxRetries dead-letters the task instead of retrying again.
func TestCoordinator_FailExhaustsToDeadLetter(t *testing.T) {
	c := newTestCoordinator()
	id := c.Submit("always fails", types.PriorityNormal)

	for i := 0; i < 2; i++ {
		_ = c.Assign(id, "w1")
		_ = c.Start(id)
		if err := c.Fail(id, errors.New("boom")); err != nil {
			t.Fatalf("fail #%d: %v", i, err)
		}
		// Fail() re-enqueues the task (status Queued) when under the
		// retry budget, so the next loop iteration can Assign it again.
	}

	_ = c.Assign(id, "w1")
	_ = c.Start(id)
	if err := c.Fail(id, errors.New("boom")); err != nil {
		t.Fatalf("final fail: %v", err)
	}

	task, _ := c.GetTask(id)
	if task.Status != types.TaskFailed {
		t.Fatalf("got status %s, want Failed", task.Status)
	}
	if len(c.DeadLetters()) != 1 {
		t.Fatalf("got %d dead letters, want 1", len(c.DeadLetters()))
	}
}

// Cancel succeeds for a non-terminal task and fails (returns false) for
// an already-terminal one.
func TestCoordinator_Cancel(t *testing.T) {
	c := newTestCoordinator()
	id := c.Submit("cancel me", types.PriorityNormal)

	ok, err := c.Cancel(id)
	if err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}
	ok, err = c.Cancel(id)
	if err != nil || ok {
		t.Fatalf("expected second cancel to report false, got ok=%v err=%v", ok, err)
	}
}

// Decompose splits on "and" into parallel Normal-priority subtasks.
func TestCoordinator_DecomposeAnd(t *testing.T) {
	c := newTestCoordinator()
	tasks := c.Decompose("write the tests and update the docs")
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].Description != "write the tests" || tasks[1].Description != "update the docs" {
		t.Fatalf("unexpected split: %+v", tasks)
	}
}

// Decompose splits on "then" into sequential subtasks tagged with their
// sequence index.
func TestCoordinator_DecomposeThen(t *testing.T) {
	c := newTestCoordinator()
	tasks := c.Decompose("build the project then deploy it")
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].Metadata["sequence_index"] != "0" || tasks[1].Metadata["sequence_index"] != "1" {
		t.Fatalf("unexpected sequence tagging: %+v", tasks)
	}
}

// Decompose returns the original description untouched when it
// contains neither connector.
func TestCoordinator_DecomposeNoConnector(t *testing.T) {
	c := newTestCoordinator()
	tasks := c.Decompose("refactor the parser")
	if len(tasks) != 1 || tasks[0].Description != "refactor the parser" {
		t.Fatalf("unexpected decomposition: %+v", tasks)
	}
}

// UpdateProgress delivers on the bounded channel without blocking when
// there is room, and drops silently rather than blocking when full.
func TestCoordinator_UpdateProgress_DropsWhenFull(t *testing.T) {
	c := New(Config{ProgressBufferSize: 1}, zap.NewNop())
	c.UpdateProgress("t1", 0.5, "halfway")
	c.UpdateProgress("t1", 0.9, "almost") // channel full, must not block

	select {
	case update := <-c.Progress():
		if update.Message != "halfway" {
			t.Fatalf("got %q, want halfway (first update should survive)", update.Message)
		}
	default:
		t.Fatal("expected the first update to be delivered")
	}
}

// The admission gate rejects GetNextTask once the breaker opens from
// repeated Fail calls, even though tasks remain queued.
func TestCoordinator_AdmissionGateOpensOnFailures(t *testing.T) {
	c := New(Config{MaxRetries: 0, Breaker: recovery.BreakerConfig{
		FailureThreshold: 1, SuccessThreshold: 1, OpenDuration: time.Hour, FailureWindow: time.Hour,
	}}, zap.NewNop())

	id := c.Submit("will fail", types.PriorityNormal)
	_ = c.Assign(id, "w1")
	_ = c.Start(id)
	_ = c.Fail(id, errors.New("boom"))

	c.Submit("queued behind the breaker", types.PriorityNormal)
	if _, ok := c.GetNextTask(); ok {
		t.Fatal("expected admission gate to reject once the breaker is open")
	}
}
