// Command workgraphd is the long-running coordinator + service daemon
// (spec.md 4.7/4.8). It takes a single positional argument, the project
// root (default: current directory); everything else is config.toml,
// federation.yaml, and environment variables — general CLI argument parsing
// is explicitly out of scope (spec.md §1).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/wgraph/engine/internal/config"
	"github.com/wgraph/engine/internal/coordinator"
	corelogging "github.com/wgraph/engine/internal/corelib/logging"
	"github.com/wgraph/engine/internal/corelib/otelinit"
	"github.com/wgraph/engine/internal/identity"
	"github.com/wgraph/engine/internal/identity/blobcache"
	"github.com/wgraph/engine/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "workgraphd:", err)
		os.Exit(2)
	}
}

func run() error {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	wgDir := filepath.Join(root, ".workgraph")
	if err := os.MkdirAll(wgDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", wgDir, err)
	}

	logger := corelogging.Init("workgraphd")

	cfg, err := config.Load(wgDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := otelinit.InitTracer(ctx, "workgraphd")
	defer shutdownTracer(context.Background())
	shutdownMetrics, instruments := otelinit.InitMetrics(ctx, "workgraphd")
	defer shutdownMetrics(context.Background())

	idStore := identity.Open(filepath.Join(wgDir, "identity"))
	if err := idStore.Init(); err != nil {
		return fmt.Errorf("init identity store: %w", err)
	}

	coord := coordinator.New(wgDir, root, cfg)
	coord.Logger = logger
	coord.Identity = idStore
	coord.Metrics = adaptMetrics(instruments)
	if err := coord.Registry.Init(); err != nil {
		logger.Warn("workgraphd: init default executor configs failed", "error", err)
	}

	skillCache, err := blobcache.Open(filepath.Join(wgDir, "identity", "skillcache"))
	if err != nil {
		logger.Warn("workgraphd: open skill cache failed, resolving skills uncached", "error", err)
	} else {
		coord.Registry.SetSkillCache(skillCache)
		defer skillCache.Close()
	}

	daemon := service.New(wgDir, coord)
	daemon.Metrics = service.Metrics{
		FederationSyncs: func(ctx context.Context, incr int64) { instruments.FederationSyncs.Add(ctx, incr) },
	}
	logger.Info("workgraphd: starting", "project_root", root, "workgraph_dir", wgDir)
	if err := daemon.Run(ctx); err != nil {
		return fmt.Errorf("daemon run: %w", err)
	}
	logger.Info("workgraphd: stopped")
	return nil
}

// adaptMetrics narrows otelinit's concrete instrument bundle to the small
// set of counter funcs coordinator.Coordinator records into, keeping
// internal/coordinator free of a direct otelinit dependency.
func adaptMetrics(m otelinit.Metrics) coordinator.Metrics {
	return coordinator.Metrics{
		TickCount:      func(ctx context.Context, incr int64) { m.TickCount.Add(ctx, incr) },
		TaskDuration:   func(ctx context.Context, ms float64) { m.TaskDuration.Record(ctx, ms) },
		TaskDone:       func(ctx context.Context, incr int64) { m.TaskDone.Add(ctx, incr) },
		TaskFailed:     func(ctx context.Context, incr int64) { m.TaskFailed.Add(ctx, incr) },
		RewardCount:    func(ctx context.Context, incr int64) { m.RewardCount.Add(ctx, incr) },
		LoopEdgesFired: func(ctx context.Context, incr int64) { m.LoopEdgesFired.Add(ctx, incr) },
	}
}
