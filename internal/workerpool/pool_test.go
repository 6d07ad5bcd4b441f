package workerpool

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kaelvex/fabricd/internal/types"
)

func stdConfig() types.WorkerConfig {
	return types.WorkerConfig{DisplayName: "w", WorkingDir: ".", Permission: types.PermissionStandard, Timeout: 5 * time.Second}
}

// SpawnWorker adds an Idle worker immediately usable by Execute.
func TestPool_SpawnWorker(t *testing.T) {
	p := New(PoolConfig{MaxWorkers: 2}, zap.NewNop())
	id, err := p.SpawnWorker(stdConfig())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	info := p.ListWorkers()
	if len(info) != 1 || info[0].ID != id || info[0].Status != types.WorkerIdle {
		t.Fatalf("unexpected worker info: %+v", info)
	}
}

// SpawnWorker returns ErrPoolFull once MaxWorkers is reached.
func TestPool_SpawnWorker_PoolFull(t *testing.T) {
	p := New(PoolConfig{MaxWorkers: 1}, zap.NewNop())
	if _, err := p.SpawnWorker(stdConfig()); err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	if _, err := p.SpawnWorker(stdConfig()); err != ErrPoolFull {
		t.Fatalf("got %v, want ErrPoolFull", err)
	}
}

// Spawning a Root-level worker without a matching confirmation token is
// rejected.
func TestPool_SpawnWorker_RootRequiresConfirmation(t *testing.T) {
	p := New(PoolConfig{MaxWorkers: 1, RootConfirmationToken: "secret"}, zap.NewNop())
	cfg := stdConfig()
	cfg.Permission = types.PermissionRoot
	if _, err := p.SpawnWorker(cfg); err != ErrRootConfirmationRequired {
		t.Fatalf("got %v, want ErrRootConfirmationRequired", err)
	}
	cfg.RootConfirmation = "secret"
	if _, err := p.SpawnWorker(cfg); err != nil {
		t.Fatalf("expected spawn to succeed with matching token: %v", err)
	}
}

// Execute against a missing AI CLI binary reports a worker-level
// failure (spawn error), not a task-level one, and the worker is marked
// Failed rather than returned to Idle.
func TestPool_Execute_MissingBinaryFailsWorker(t *testing.T) {
	p := New(PoolConfig{MaxWorkers: 1, AICommand: "definitely-not-a-real-binary-xyz"}, zap.NewNop())
	id, _ := p.SpawnWorker(stdConfig())

	task := &types.Task{ID: "t1", Description: "do a thing"}
	result, err := p.Execute(context.Background(), task, id)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure result for a missing binary")
	}

	info := p.ListWorkers()
	if len(info) != 1 || info[0].Status != types.WorkerFailed {
		t.Fatalf("expected worker to be marked Failed, got %+v", info)
	}
}

// Execute returns ErrNoIdleWorker when every worker is Busy (or absent).
func TestPool_Execute_NoIdleWorker(t *testing.T) {
	p := New(PoolConfig{MaxWorkers: 1}, zap.NewNop())
	task := &types.Task{ID: "t1", Description: "do a thing"}
	if _, err := p.Execute(context.Background(), task, ""); err != ErrNoIdleWorker {
		t.Fatalf("got %v, want ErrNoIdleWorker", err)
	}
}

// KillWorker removes the worker regardless of its status.
func TestPool_KillWorker(t *testing.T) {
	p := New(PoolConfig{MaxWorkers: 1}, zap.NewNop())
	id, _ := p.SpawnWorker(stdConfig())
	if err := p.KillWorker(id); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if len(p.ListWorkers()) != 0 {
		t.Fatal("expected no workers after kill")
	}
}

// Stats reports Utilization as the busy fraction of the total.
func TestPool_Stats_Utilization(t *testing.T) {
	p := New(PoolConfig{MaxWorkers: 2}, zap.NewNop())
	id, _ := p.SpawnWorker(stdConfig())
	_, _ = p.SpawnWorker(stdConfig())

	w := p.workers[id]
	w.tryClaim() // simulate Busy without running a real process

	stats := p.Stats()
	if stats.TotalWorkers != 2 || stats.BusyWorkers != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if u := stats.Utilization(); u != 0.5 {
		t.Fatalf("got utilization %.2f, want 0.5", u)
	}
}

// The health loop evicts an Idle worker once it exceeds MaxIdleTime.
func TestPool_HealthLoop_EvictsIdleWorker(t *testing.T) {
	p := New(PoolConfig{MaxWorkers: 1, MaxIdleTime: time.Millisecond, HealthCheckInterval: time.Hour}, zap.NewNop())
	_, _ = p.SpawnWorker(stdConfig())
	time.Sleep(5 * time.Millisecond)

	p.runHealthPass()

	if len(p.ListWorkers()) != 0 {
		t.Fatal("expected idle worker to be evicted")
	}
}

// The health loop restarts a Failed worker under a fresh identity when
// RestartOnFailure is set.
func TestPool_HealthLoop_RestartsFailedWorker(t *testing.T) {
	p := New(PoolConfig{MaxWorkers: 1, RestartOnFailure: true, HealthCheckInterval: time.Hour}, zap.NewNop())
	id, _ := p.SpawnWorker(stdConfig())
	p.workers[id].mu.Lock()
	p.workers[id].status = types.WorkerFailed
	p.workers[id].mu.Unlock()

	p.runHealthPass()

	info := p.ListWorkers()
	if len(info) != 1 {
		t.Fatalf("expected exactly one worker after restart, got %d", len(info))
	}
	if info[0].ID == id {
		t.Fatal("expected the restarted worker to have a fresh identity")
	}
	if info[0].Status != types.WorkerIdle {
		t.Fatalf("expected restarted worker to be Idle, got %s", info[0].Status)
	}
}
