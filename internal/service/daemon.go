package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wgraph/engine/internal/coordinator"
	"github.com/wgraph/engine/internal/federation"
)

// Metrics is the narrow set of otel instruments the daemon records into;
// cmd/workgraphd fills it from otelinit.Metrics' FederationSyncs counter.
type Metrics struct {
	FederationSyncs func(ctx context.Context, incr int64)
}

func noopMetrics() Metrics {
	return Metrics{FederationSyncs: func(context.Context, int64) {}}
}

// Daemon is the long-running process that owns a Coordinator, serves the
// Unix socket IPC described in spec.md 4.8, and drives the coordinator on
// both a fast event-driven wake and a slow cron safety net (spec.md 4.7:
// "The coordinator polls on two timers"), grounded on the reference fleet's
// cron-backed services/orchestrator/scheduler.go.
type Daemon struct {
	WGDir       string
	Coordinator *coordinator.Coordinator
	Logger      *slog.Logger
	Metrics     Metrics

	// ShutdownGrace bounds how long Shutdown waits for SIGTERM'd handles
	// before escalating to SIGKILL (spec.md 4.7, default 10s).
	ShutdownGrace time.Duration
	// SafetyNetCron is the cron expression for the slow safety-net tick
	// (spec.md 4.7 default: every 60s).
	SafetyNetCron string
	// AntiEntropyCron drives the federation anti-entropy loop (spec.md
	// SPEC_FULL.md §1: robfig/cron backs this too).
	AntiEntropyCron string

	tracer trace.Tracer
	ledger *AdoptionLedger

	wakeCh chan struct{}
	cron   *cron.Cron
}

// New builds a Daemon rooted at wgDir, wrapping an already-constructed
// Coordinator (built by the caller so it can wire logging/metrics/identity
// the way cmd/workgraphd does).
func New(wgDir string, coord *coordinator.Coordinator) *Daemon {
	logger := coord.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		WGDir:           wgDir,
		Coordinator:     coord,
		Logger:          logger,
		Metrics:         noopMetrics(),
		ShutdownGrace:   10 * time.Second,
		SafetyNetCron:   "@every 60s",
		AntiEntropyCron: "@every 5m",
		tracer:          otel.Tracer("workgraph-service"),
		wakeCh:          make(chan struct{}, 1),
	}
}

func (d *Daemon) graphPath() string { return filepath.Join(d.WGDir, "graph.jsonl") }

// wake schedules an immediate tick without blocking the caller (spec.md
// 4.7: "a fast event-driven wake (receives IPC GraphChanged)").
func (d *Daemon) wake() {
	select {
	case d.wakeCh <- struct{}{}:
	default: // a wake is already pending; ticks are idempotent, so drop it
	}
}

// Run starts the socket listener, cron scheduler, and tick loop, blocking
// until ctx is cancelled. On return the socket and state.json are removed
// and unreaped subprocess PIDs are persisted to the adoption ledger.
func (d *Daemon) Run(ctx context.Context) error {
	ln, err := listen(d.WGDir)
	if err != nil {
		return err
	}
	defer ln.Close()

	ledger, err := OpenAdoptionLedger(d.WGDir)
	if err != nil {
		return fmt.Errorf("service: open adoption ledger: %w", err)
	}
	d.ledger = ledger
	defer ledger.Close()

	state := State{PID: os.Getpid(), SocketPath: ln.Addr().String(), StartedAt: Now().Format(time.RFC3339)}
	if err := WriteState(d.WGDir, state); err != nil {
		return fmt.Errorf("service: write state: %w", err)
	}
	defer RemoveState(d.WGDir)

	d.logAdoptedHandles()

	d.cron = cron.New()
	if _, err := d.cron.AddFunc(d.SafetyNetCron, d.wake); err != nil {
		return fmt.Errorf("service: schedule safety-net cron: %w", err)
	}
	if _, err := d.cron.AddFunc(d.AntiEntropyCron, func() { d.antiEntropyTick(ctx) }); err != nil {
		return fmt.Errorf("service: schedule anti-entropy cron: %w", err)
	}
	d.cron.Start()
	defer d.cron.Stop()

	go d.serve(ctx, ln)
	return d.runTickLoop(ctx)
}

// runTickLoop blocks, running a coordinator Tick each time wake() fires
// (from IPC GraphChanged, the safety-net cron, or an initial kick), until
// ctx is cancelled. serve() runs the accept loop in its own goroutine
// (spawned from Run via d.serve), so this loop only ever touches the
// coordinator — never the network.
func (d *Daemon) runTickLoop(ctx context.Context) error {
	d.wake() // run one tick immediately on startup
	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case <-d.wakeCh:
			tickCtx, span := d.tracer.Start(ctx, "service.tick")
			if err := d.Coordinator.Tick(tickCtx); err != nil {
				d.Logger.Error("service: tick failed", "error", err)
			}
			span.End()
		}
	}
}

// shutdown terminates every running agent handle (escalating SIGTERM to
// SIGKILL after ShutdownGrace) and persists whatever is still alive to the
// adoption ledger for a future daemon to pick up (spec.md 4.7
// "Cancellation").
func (d *Daemon) shutdown() {
	unreaped := d.Coordinator.Shutdown(d.ShutdownGrace)
	if len(unreaped) == 0 {
		return
	}
	if err := d.ledger.RecordUnreaped(unreaped); err != nil {
		d.Logger.Warn("service: record unreaped handles failed", "error", err)
		return
	}
	for id, pid := range unreaped {
		d.Logger.Warn("service: child not reaped before grace period elapsed", "task", id, "pid", pid)
	}
}

// logAdoptedHandles reports any PIDs left over from a prior crashed daemon,
// for operator visibility; this daemon does not reattach to their stdio —
// it relies on the coordinator's next tick reaping the task via the graph
// (the task is left InProgress and will be retried once an operator marks
// it Failed, or picked up if the process happens to still be writing to the
// same output files).
func (d *Daemon) logAdoptedHandles() {
	recs, err := d.ledger.ListUnreaped()
	if err != nil {
		d.Logger.Warn("service: list unreaped handles failed", "error", err)
		return
	}
	for _, rec := range recs {
		d.Logger.Info("service: found unreaped handle from a prior daemon", "task", rec.TaskID, "pid", rec.PID, "recorded_at", rec.RecordedAt)
	}
}

// antiEntropyTick probes every configured peer's liveness via
// federation.CheckPeerService, logging and counting each probe, and touches
// each remote's last_sync timestamp. The probe results do not feed
// federation's peer circuit breaker. It runs on AntiEntropyCron
// (spec.md SPEC_FULL.md §1: cron backs "the federation
// anti-entropy loop").
func (d *Daemon) antiEntropyTick(ctx context.Context) {
	ctx, span := d.tracer.Start(ctx, "service.anti_entropy")
	defer span.End()

	cfg, err := federation.Load(d.WGDir)
	if err != nil {
		d.Logger.Warn("service: anti-entropy: load federation config failed", "error", err)
		return
	}
	var wg sync.WaitGroup
	for name := range cfg.Peers {
		wg.Add(1)
		go func(peer string) {
			defer wg.Done()
			resolved, err := federation.ResolvePeer(peer, d.WGDir)
			if err != nil {
				d.Logger.Debug("service: anti-entropy: cannot resolve peer", "peer", peer, "error", err)
				return
			}
			status := federation.CheckPeerService(resolved.WorkgraphDir)
			d.Metrics.FederationSyncs(ctx, 1)
			d.Logger.Debug("service: anti-entropy peer probe", "peer", peer, "running", status.Running)
		}(name)
	}
	wg.Wait()
	for name := range cfg.Remotes {
		if err := federation.TouchRemoteSync(d.WGDir, name, Now()); err != nil {
			d.Logger.Warn("service: anti-entropy: touch remote sync failed", "remote", name, "error", err)
		}
	}
}
