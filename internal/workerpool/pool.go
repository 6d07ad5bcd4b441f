package workerpool

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kaelvex/fabricd/internal/tools"
	"github.com/kaelvex/fabricd/internal/types"
)

// PoolConfig configures pool-wide limits and health-loop cadence.
type PoolConfig struct {
	MaxWorkers            int
	RestartOnFailure      bool
	HealthCheckInterval   time.Duration
	MaxIdleTime           time.Duration
	RootConfirmationToken string

	// AICommand is the AI CLI binary invoked by Execute (default
	// "claude"); overridable for tests.
	AICommand string
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.MaxIdleTime <= 0 {
		c.MaxIdleTime = 10 * time.Minute
	}
	if c.AICommand == "" {
		c.AICommand = "claude"
	}
	return c
}

// Pool is the worker table described by spec §4.2.
type Pool struct {
	config PoolConfig
	log    *zap.Logger

	mu      sync.RWMutex
	workers map[string]*worker

	stopHealth chan struct{}
	healthWG   sync.WaitGroup
}

// New builds a Pool with the given configuration.
func New(config PoolConfig, log *zap.Logger) *Pool {
	return &Pool{
		config:  config.withDefaults(),
		log:     log,
		workers: map[string]*worker{},
	}
}

// SpawnWorker adds a new worker in Starting state, immediately advancing
// it to Idle (process pool has no separate handshake phase). Returns
// ErrPoolFull at MaxWorkers, and ErrRootConfirmationRequired for a
// Root-level config whose RootConfirmation doesn't match the pool's
// configured token.
func (p *Pool) SpawnWorker(config types.WorkerConfig) (string, error) {
	if config.Permission == types.PermissionRoot {
		if p.config.RootConfirmationToken == "" || config.RootConfirmation != p.config.RootConfirmationToken {
			return "", ErrRootConfirmationRequired
		}
	}

	if config.WorkingDir == "" {
		config.WorkingDir = tools.WorkspaceDir()
		if err := tools.EnsureWorkspace(); err != nil {
			p.log.Warn("could not ensure default workspace dir", zap.Error(err))
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.config.MaxWorkers > 0 && len(p.workers) >= p.config.MaxWorkers {
		return "", ErrPoolFull
	}

	w := newWorker(config)
	w.status = types.WorkerIdle
	p.workers[w.id] = w
	p.log.Info("worker spawned", zap.String("worker_id", w.id), zap.String("permission", config.Permission.String()))
	return w.id, nil
}

// KillWorker removes a worker regardless of its current state.
func (p *Pool) KillWorker(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.workers[id]; !ok {
		return ErrWorkerNotFound
	}
	delete(p.workers, id)
	return nil
}

// ListWorkers returns a point-in-time snapshot of every worker.
func (p *Pool) ListWorkers() []types.WorkerInfo {
	p.mu.RLock()
	ws := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		ws = append(ws, w)
	}
	p.mu.RUnlock()

	out := make([]types.WorkerInfo, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.info())
	}
	return out
}

// Stats summarizes the pool's worker states.
func (p *Pool) Stats() types.PoolStats {
	var st types.PoolStats
	for _, info := range p.ListWorkers() {
		st.TotalWorkers++
		switch info.Status {
		case types.WorkerIdle:
			st.IdleWorkers++
		case types.WorkerBusy:
			st.BusyWorkers++
		case types.WorkerFailed:
			st.FailedWorkers++
		}
	}
	return st
}

// getIdleWorker takes a read lock on the table, then tries each
// worker's own lock non-blockingly, skipping contended ones rather than
// blocking the whole pool (spec §4.2).
func (p *Pool) getIdleWorker(preferred string) *worker {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if preferred != "" {
		if w, ok := p.workers[preferred]; ok && w.tryClaim() {
			return w
		}
	}
	for id, w := range p.workers {
		if id == preferred {
			continue
		}
		if w.tryClaim() {
			return w
		}
	}
	return nil
}

// Execute runs task on an Idle worker (preferredWorker if given and
// available, otherwise any Idle worker), invoking the AI CLI with the
// task description as its argument in the worker's working directory.
// Output is captured up to MaxOutputBytes; the child is killed if it
// exceeds the task's timeout. A timeout or non-zero exit is a task
// failure, not a worker failure — the worker returns to Idle either way.
func (p *Pool) Execute(ctx context.Context, task *types.Task, preferredWorker string) (types.WorkerResult, error) {
	w := p.getIdleWorker(preferredWorker)
	if w == nil {
		return types.WorkerResult{}, ErrNoIdleWorker
	}

	timeout := w.config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{task.Description}
	if w.config.Permission >= types.PermissionElevated {
		args = append([]string{"--skip-permission-prompts"}, args...)
	}

	cmd := exec.CommandContext(runCtx, p.config.AICommand, args...)
	cmd.Dir = w.config.WorkingDir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	output := buf.String()
	maxBytes := w.config.MaxOutputBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	if len(output) > maxBytes {
		output = output[:maxBytes]
	}

	if err != nil {
		if _, isExitErr := err.(*exec.ExitError); isExitErr {
			w.release(false, false)
			exitCode := 1
			if ee, ok := err.(*exec.ExitError); ok {
				exitCode = ee.ExitCode()
			}
			return types.WorkerResult{WorkerID: w.id, Success: false, Output: output, Error: err.Error(), Duration: duration, ExitCode: exitCode}, nil
		}
		// Spawn/protocol-level failure (binary missing, context
		// cancelled before start, etc): the worker itself is unhealthy.
		w.release(false, true)
		return types.WorkerResult{WorkerID: w.id, Success: false, Output: output, Error: err.Error(), Duration: duration, ExitCode: -1}, nil
	}

	w.release(true, false)
	return types.WorkerResult{WorkerID: w.id, Success: true, Output: output, Duration: duration, ExitCode: 0}, nil
}

// Start launches the background health loop.
func (p *Pool) Start() {
	p.stopHealth = make(chan struct{})
	p.healthWG.Add(1)
	go p.healthLoop()
}

// Stop halts the health loop and waits for it to exit.
func (p *Pool) Stop() {
	if p.stopHealth == nil {
		return
	}
	close(p.stopHealth)
	p.healthWG.Wait()
}

func (p *Pool) healthLoop() {
	defer p.healthWG.Done()
	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopHealth:
			return
		case <-ticker.C:
			p.runHealthPass()
		}
	}
}

// runHealthPass collects candidates under a read lock, then mutates
// under a write lock, per spec §4.2's two-phase discipline.
func (p *Pool) runHealthPass() {
	now := time.Now()

	p.mu.RLock()
	var toRemove, toRestart []string
	restartConfigs := map[string]types.WorkerConfig{}
	for id, w := range p.workers {
		status, lastActive := w.snapshotStatus()
		switch status {
		case types.WorkerIdle:
			if now.Sub(lastActive) > p.config.MaxIdleTime {
				toRemove = append(toRemove, id)
			}
		case types.WorkerFailed:
			if p.config.RestartOnFailure {
				toRestart = append(toRestart, id)
				restartConfigs[id] = w.config
			} else {
				toRemove = append(toRemove, id)
			}
		}
	}
	p.mu.RUnlock()

	if len(toRemove) == 0 && len(toRestart) == 0 {
		return
	}

	p.mu.Lock()
	for _, id := range toRemove {
		delete(p.workers, id)
	}
	for _, id := range toRestart {
		delete(p.workers, id)
		nw := newWorker(restartConfigs[id])
		nw.markIdle()
		p.workers[nw.id] = nw
	}
	p.mu.Unlock()

	if len(toRemove) > 0 {
		p.log.Info("health loop evicted workers", zap.Int("count", len(toRemove)))
	}
	if len(toRestart) > 0 {
		p.log.Info("health loop restarted failed workers", zap.Int("count", len(toRestart)))
	}
}
