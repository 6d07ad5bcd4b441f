// Command fabricd is the execution fabric's entrypoint: a distributed
// AI-assistant orchestration service combining the Task Coordinator,
// Worker Pool, Credential Vault, Skill Registry/Sandbox, Preflight
// Checker, and Remote Bridge into one process. Grounded on
// haricheung-agentic-shell/cmd/agsh/main.go's startup sequence (load
// config, open vault, build components in dependency order, run until
// signalled, tear down in reverse), adapted from an interactive REPL to
// a long-running server per spec §6.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kaelvex/fabricd/internal/bus"
	"github.com/kaelvex/fabricd/internal/bridge"
	"github.com/kaelvex/fabricd/internal/config"
	"github.com/kaelvex/fabricd/internal/coordinator"
	"github.com/kaelvex/fabricd/internal/engine"
	"github.com/kaelvex/fabricd/internal/llm"
	"github.com/kaelvex/fabricd/internal/logging"
	"github.com/kaelvex/fabricd/internal/preflight"
	"github.com/kaelvex/fabricd/internal/recovery"
	"github.com/kaelvex/fabricd/internal/sandbox"
	"github.com/kaelvex/fabricd/internal/skills"
	"github.com/kaelvex/fabricd/internal/tasklog"
	"github.com/kaelvex/fabricd/internal/types"
	"github.com/kaelvex/fabricd/internal/ui"
	"github.com/kaelvex/fabricd/internal/vault"
	"github.com/kaelvex/fabricd/internal/workerpool"
)

// Exit codes per spec §6.
const (
	exitOK        = 0
	exitInitError = 1
	exitConfigErr = 2
)

func main() {
	var (
		grpcServer = flag.Bool("grpc-server", false, "run the bridge server explicitly (default mode already does this)")
		grpcShort  = flag.Bool("g", false, "shorthand for -grpc-server")
		telegram   = flag.Bool("telegram", false, "run the Telegram front-end adapter (out of core)")
		telegramS  = flag.Bool("t", false, "shorthand for -telegram")
	)
	flag.Usage = printUsage
	flag.Parse()

	if *telegram || *telegramS {
		fmt.Fprintln(os.Stderr, "fabricd: the Telegram front-end adapter is an out-of-core channel and is not built into this binary")
		os.Exit(exitConfigErr)
	}
	_ = grpcServer
	_ = grpcShort // both modes run the same bridge server; the flags are accepted for compatibility with spec §6's CLI surface

	cfg := config.Load()
	if cfg.BridgeAPIKey == "" {
		fmt.Fprintln(os.Stderr, "fabricd: BRIDGE_API_KEY must be set")
		os.Exit(exitConfigErr)
	}

	log, err := logging.New(cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fabricd: failed to build logger: %v\n", err)
		os.Exit(exitInitError)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("fatal startup error", zap.Error(err))
		os.Exit(exitInitError)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `fabricd: distributed AI-assistant execution fabric

Usage:
  fabricd [flags]

By default, fabricd runs as a request-processing server over the Remote
Bridge. Flags:
  -grpc-server, -g   run the bridge server (default behavior, accepted explicitly)
  -telegram, -t      run the Telegram front-end adapter (out of core; not built in)
  -help              print this message

Exit codes: 0 normal, 1 initialization error, 2 configuration error.`)
}

// run builds every component in dependency order (vault -> registry ->
// pool -> coordinator -> bridge, per spec §9), starts the bridge HTTP
// server, and blocks until a termination signal arrives, tearing
// everything down in reverse order.
func run(cfg *config.Config, log *zap.Logger) error {
	// Vault first: the Skill Sandbox's secret injection and the Preflight
	// Checker's credential probes both depend on it.
	v, err := vault.Open(cfg.VaultPath)
	if err != nil {
		return fmt.Errorf("open vault: %w", err)
	}
	if cfg.VaultPassword != "" {
		if err := v.Unlock(cfg.VaultPassword); err != nil {
			return fmt.Errorf("unlock vault: %w", err)
		}
	}
	defer v.Close()
	if err := v.StartExpirySweep("@every 1h", 48*time.Hour, logging.Component(log, "vault")); err != nil {
		log.Warn("vault expiry sweep not started", zap.Error(err))
	}

	// Skill Registry next: the engine's InvokeSkill (reached from the
	// bridge's /skills/invoke route) runs skills that live here.
	registry, err := skills.Open(cfg.SkillsDir, logging.Component(log, "skills"))
	if err != nil {
		return fmt.Errorf("open skill registry: %w", err)
	}
	defer registry.Close()
	if err := registry.Watch(); err != nil {
		log.Warn("skill registry filesystem watch not started", zap.Error(err))
	}

	llmClient := llm.New(logging.Component(log, "llm"))
	box := sandbox.New(v, llmClient.Invoke)

	eventBus := bus.New(logging.Component(log, "bus"))
	display := ui.New(eventBus.NewTap())
	displayCtx, stopDisplay := context.WithCancel(context.Background())
	go display.Run(displayCtx)
	defer stopDisplay()

	taskLogs := tasklog.NewRegistry(cfg.CacheDir, logging.Component(log, "tasklog"))

	pool := workerpool.New(workerpool.PoolConfig{
		MaxWorkers:            cfg.WorkerMaxCount,
		RestartOnFailure:      true,
		HealthCheckInterval:   cfg.HealthCheckInterval,
		MaxIdleTime:           cfg.MaxIdleTime,
		RootConfirmationToken: cfg.WorkerRootConfirmationToken,
	}, logging.Component(log, "workerpool"))
	pool.Start()
	defer pool.Stop()

	coord := coordinator.New(coordinator.Config{
		MaxRetries: 3,
		Breaker:    recovery.DefaultBreakerConfig(),
	}, logging.Component(log, "coordinator"))

	checker := preflight.New(v, "")

	eng := engine.New(engine.Config{
		Priority: types.PriorityNormal,
		WorkerConfig: types.WorkerConfig{
			DisplayName:      "default",
			WorkingDir:       "",
			Permission:       types.PermissionStandard,
			Timeout:          cfg.DefaultTaskTimeout,
			RootConfirmation: cfg.WorkerRootConfirmationToken,
		},
	}, coord, pool, checker, eventBus, taskLogs, registry, box, logging.Component(log, "engine"))

	engineCtx, stopEngine := context.WithCancel(context.Background())
	eng.Start(engineCtx)
	defer func() {
		stopEngine()
		eng.Stop()
	}()

	server := bridge.New(bridge.Config{
		SharedSecret: cfg.BridgeAPIKey,
	}, eng, logging.Component(log, "bridge"))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.BridgeGRPCPort),
		Handler: server.Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("bridge server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serveErr:
		return fmt.Errorf("bridge server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("bridge server did not shut down cleanly", zap.Error(err))
	}
	return nil
}
