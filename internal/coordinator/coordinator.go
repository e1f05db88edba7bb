// Package coordinator implements the control loop that claims ready tasks,
// spawns executor subprocesses, reaps them, applies completion/failure
// transitions, and fires loop edges (spec.md 4.7). One tick is the unit of
// work; Coordinator is driven by a fast IPC-triggered wake and a slow
// safety-net cron tick from internal/service, grounded on the reference
// fleet's DAG executor tick shape (services/orchestrator/dag_engine.go) and
// its cron-driven scheduler (services/orchestrator/scheduler.go).
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wgraph/engine/internal/capture"
	"github.com/wgraph/engine/internal/config"
	"github.com/wgraph/engine/internal/executor"
	"github.com/wgraph/engine/internal/federation"
	"github.com/wgraph/engine/internal/graph"
	"github.com/wgraph/engine/internal/graphstore"
	"github.com/wgraph/engine/internal/identity"
	"github.com/wgraph/engine/internal/readiness"
)

// Metrics is the narrow set of otel instruments the coordinator records
// into; cmd/workgraphd builds one from internal/corelib/otelinit.Metrics
// with adaptMetrics.
type Metrics struct {
	TickCount      func(ctx context.Context, incr int64)
	TaskDuration   func(ctx context.Context, ms float64)
	TaskDone       func(ctx context.Context, incr int64)
	TaskFailed     func(ctx context.Context, incr int64)
	RewardCount    func(ctx context.Context, incr int64)
	LoopEdgesFired func(ctx context.Context, incr int64)
}

// noopMetrics discards every observation; used when the caller doesn't wire
// otelinit (e.g. unit tests).
func noopMetrics() Metrics {
	noop := func(context.Context, int64) {}
	noopDur := func(context.Context, float64) {}
	return Metrics{TickCount: noop, TaskDuration: noopDur, TaskDone: noop, TaskFailed: noop, RewardCount: noop, LoopEdgesFired: noop}
}

// Coordinator owns the single control loop for one workgraph repo.
type Coordinator struct {
	WGDir    string
	RepoRoot string
	Config   config.Config
	Registry *executor.Registry
	Identity *identity.Store
	Metrics  Metrics
	Logger   *slog.Logger

	mu      sync.Mutex
	handles map[string]*executor.AgentHandle // task id -> running handle
	tracer  trace.Tracer
}

// New builds a Coordinator rooted at wgDir.
func New(wgDir, repoRoot string, cfg config.Config) *Coordinator {
	return &Coordinator{
		WGDir:    wgDir,
		RepoRoot: repoRoot,
		Config:   cfg,
		Registry: executor.NewRegistry(wgDir),
		Identity: identity.Open(filepath.Join(wgDir, "identity")),
		Metrics:  noopMetrics(),
		Logger:   slog.Default(),
		handles:  make(map[string]*executor.AgentHandle),
		tracer:   otel.Tracer("workgraph-coordinator"),
	}
}

func (c *Coordinator) graphPath() string { return c.WGDir + "/graph.jsonl" }

// RunningCount reports how many agent handles the coordinator currently
// owns, used to bound claims against Config.Coordinator.MaxAgents.
func (c *Coordinator) RunningCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// Tick runs one full coordinator cycle: claim, dispatch, reap, fire loops,
// enqueue reward tasks. Errors from individual steps are logged and do not
// abort the remaining steps (spec.md 7: per-task errors don't abort the
// tick); a graph-load failure at the top does abort, since nothing below
// can proceed without a graph.
func (c *Coordinator) Tick(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "coordinator.tick")
	defer span.End()
	c.Metrics.TickCount(ctx, 1)

	if _, err := graphstore.Load(c.graphPath()); err != nil {
		return fmt.Errorf("coordinator: load graph: %w", err)
	}
	if err := c.claimAndDispatch(ctx); err != nil {
		c.Logger.Error("coordinator: claim/dispatch failed", "error", err)
	}
	doneIDs, err := c.reap(ctx)
	if err != nil {
		c.Logger.Error("coordinator: reap failed", "error", err)
	}
	if err := c.fireLoopEdges(ctx, doneIDs); err != nil {
		c.Logger.Error("coordinator: loop edge firing failed", "error", err)
	}
	if err := c.enqueueAutoRewards(ctx, doneIDs); err != nil {
		c.Logger.Error("coordinator: auto-reward enqueue failed", "error", err)
	}
	return nil
}

// claimAndDispatch claims ready tasks up to the configured concurrency and
// spawns an executor for each (spec.md 4.7 step 2).
func (c *Coordinator) claimAndDispatch(ctx context.Context) error {
	maxAgents := c.Config.Coordinator.MaxAgents
	if maxAgents <= 0 {
		maxAgents = 4
	}
	slots := maxAgents - c.RunningCount()
	if slots <= 0 {
		return nil
	}

	g, err := graphstore.Load(c.graphPath())
	if err != nil {
		return fmt.Errorf("coordinator: load graph: %w", err)
	}
	ready := readiness.ReadyTasksWithRemote(g, time.Now(), c.resolveRemoteDep(ctx))
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID }) // deterministic order

	claimed := 0
	for _, t := range ready {
		if claimed >= slots {
			break
		}
		executorName := c.Config.Coordinator.Executor
		if executorName == "" {
			executorName = "claude"
		}

		agentID := uuid.NewString()
		now := time.Now().UTC()
		nowStr := now.Format(time.RFC3339)
		t.Status = graph.StatusInProgress
		t.StartedAt = &nowStr
		t.Assigned = &agentID
		if c.Config.Coordinator.Model != nil {
			t.Model = c.Config.Coordinator.Model
		}

		if err := graphstore.Save(g, c.graphPath()); err != nil {
			return fmt.Errorf("coordinator: save claim for %s: %w", t.ID, err)
		}

		taskContext := c.buildTaskContext(g, t)
		handle, err := c.Registry.Spawn(executorName, t, taskContext)
		if err != nil {
			c.Logger.Error("coordinator: spawn failed", "task", t.ID, "error", err)
			t.Status = graph.StatusOpen
			t.Assigned = nil
			t.StartedAt = nil
			_ = graphstore.Save(g, c.graphPath())
			continue
		}

		c.mu.Lock()
		c.handles[t.ID] = handle
		c.mu.Unlock()
		claimed++
		c.Logger.Info("coordinator: claimed task", "task", t.ID, "agent", agentID, "executor", executorName)
	}
	return nil
}

// resolveRemoteDep adapts federation.ResolveRemoteTaskStatus into a
// readiness.RemoteResolver, so a cross-repo "peer:task" blocked_by entry is
// resolved via the peer's IPC service or a direct graph.jsonl read instead
// of being silently treated as satisfied (spec.md 4.9, test scenario 6).
func (c *Coordinator) resolveRemoteDep(ctx context.Context) readiness.RemoteResolver {
	return func(dep string) (graph.Status, bool) {
		peer, taskID, ok := federation.ParseRemoteRef(dep)
		if !ok {
			return "", false
		}
		result := federation.ResolveRemoteTaskStatus(ctx, peer, taskID, c.WGDir)
		if result.Resolution == federation.ResolutionUnreachable {
			return "", false
		}
		return result.Status, true
	}
}

// buildTaskContext aggregates the log tails of t's completed dependencies,
// giving an agent visibility into prior work without re-reading the whole
// graph (spec.md 4.7 step 2b).
func (c *Coordinator) buildTaskContext(g *graph.Graph, t *graph.Task) string {
	var b strings.Builder
	for _, dep := range t.BlockedBy {
		blocker := g.GetTask(dep)
		if blocker == nil || blocker.Status != graph.StatusDone {
			continue
		}
		b.WriteString("### " + blocker.ID + ": " + blocker.Title + "\n")
		tail := blocker.Log
		if len(tail) > 5 {
			tail = tail[len(tail)-5:]
		}
		for _, entry := range tail {
			b.WriteString("- " + entry.Message + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// reap polls every known handle without blocking and applies the
// completion/failure transition for each exited process (spec.md 4.7 step
// 3). It returns the ids of tasks that transitioned to Done this tick, for
// fireLoopEdges and enqueueAutoRewards.
func (c *Coordinator) reap(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	exited := make(map[string]error)
	for id, h := range c.handles {
		if done, err := h.TryWait(); done {
			exited[id] = err
			delete(c.handles, id)
		}
	}
	c.mu.Unlock()

	if len(exited) == 0 {
		return nil, nil
	}

	g, err := graphstore.Load(c.graphPath())
	if err != nil {
		return nil, fmt.Errorf("coordinator: load graph for reap: %w", err)
	}

	var doneIDs []string
	// deterministic order for the tick's reap pass
	ids := make([]string, 0, len(exited))
	for id := range exited {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		exitErr := exited[id]
		t := g.GetTask(id)
		if t == nil {
			continue
		}
		now := time.Now().UTC()
		nowStr := now.Format(time.RFC3339)
		if exitErr == nil {
			t.Status = graph.StatusDone
			t.CompletedAt = &nowStr
			if err := capture.CaptureTaskOutput(c.WGDir, c.RepoRoot, t); err != nil {
				c.Logger.Warn("coordinator: capture output failed", "task", id, "error", err)
			}
			c.Metrics.TaskDone(ctx, 1)
			c.recordTaskDuration(ctx, t, now)
			doneIDs = append(doneIDs, id)
			c.Logger.Info("coordinator: task done", "task", id)
		} else {
			t.RetryCount++
			reason := exitErr.Error()
			t.FailureReason = &reason
			c.Metrics.TaskFailed(ctx, 1)
			c.recordTaskDuration(ctx, t, now)
			if err := capture.CaptureTaskOutput(c.WGDir, c.RepoRoot, t); err != nil {
				c.Logger.Warn("coordinator: capture output failed", "task", id, "error", err)
			}
			withinRetries := t.MaxRetries == nil || t.RetryCount < *t.MaxRetries
			if withinRetries {
				t.Status = graph.StatusOpen
				t.Assigned = nil
				t.StartedAt = nil
				c.Logger.Warn("coordinator: task failed, reopened for retry", "task", id, "retry_count", t.RetryCount)
			} else {
				t.Status = graph.StatusFailed
				c.Logger.Warn("coordinator: task failed, retries exhausted", "task", id, "retry_count", t.RetryCount)
			}
		}
	}

	if err := graphstore.Save(g, c.graphPath()); err != nil {
		return nil, fmt.Errorf("coordinator: save after reap: %w", err)
	}
	return doneIDs, nil
}

// recordTaskDuration records the wall-clock time between t.StartedAt and end
// on the TaskDuration histogram, for both Done and Failed transitions. A task
// reaped without a recorded StartedAt (shouldn't happen, but spawn failures
// predating a claim are possible) is skipped rather than recorded as zero.
func (c *Coordinator) recordTaskDuration(ctx context.Context, t *graph.Task, end time.Time) {
	if t.StartedAt == nil {
		return
	}
	started, err := time.Parse(time.RFC3339, *t.StartedAt)
	if err != nil {
		return
	}
	c.Metrics.TaskDuration(ctx, float64(end.Sub(started).Milliseconds()))
}

// fireLoopEdges reopens the target of every satisfied LoopEdge on each
// just-completed task (spec.md 4.7 step 4, spec.md 3.2).
func (c *Coordinator) fireLoopEdges(ctx context.Context, doneIDs []string) error {
	if len(doneIDs) == 0 {
		return nil
	}
	g, err := graphstore.Load(c.graphPath())
	if err != nil {
		return fmt.Errorf("coordinator: load graph for loop firing: %w", err)
	}
	changed := false
	now := time.Now().UTC()
	for _, id := range doneIDs {
		t := g.GetTask(id)
		if t == nil {
			continue
		}
		for _, edge := range t.LoopsTo {
			target := g.GetTask(edge.Target)
			if target == nil || target.LoopIteration >= edge.MaxIterations {
				continue
			}
			if !loopGuardSatisfied(g, edge.Guard) {
				continue
			}
			target.Status = graph.StatusOpen
			target.Assigned = nil
			target.StartedAt = nil
			target.CompletedAt = nil
			target.FailureReason = nil
			target.LoopIteration++
			if edge.Delay != nil {
				if d, perr := time.ParseDuration(*edge.Delay); perr == nil {
					ts := now.Add(d).Format(time.RFC3339)
					target.ReadyAfter = &ts
				}
			} else {
				target.ReadyAfter = nil
			}
			changed = true
			c.Metrics.LoopEdgesFired(ctx, 1)
			c.Logger.Info("coordinator: loop edge fired", "from", t.ID, "target", target.ID, "iteration", target.LoopIteration)
		}
	}
	if !changed {
		return nil
	}
	return graphstore.Save(g, c.graphPath())
}

func loopGuardSatisfied(g *graph.Graph, guard *graph.LoopGuard) bool {
	if guard == nil {
		return true
	}
	if guard.Kind != graph.LoopGuardTaskStatus || guard.Task == "" {
		return true
	}
	t := g.GetTask(guard.Task)
	if t == nil {
		return false
	}
	return t.Status == guard.Status
}

// enqueueAutoRewards synthesizes an evaluator task for each task that just
// completed, when the project's agency config has auto-evaluation enabled
// (spec.md 4.7 step 5). The synthetic task targets the configured evaluator
// agent and is itself a normal Open task the coordinator will later claim.
func (c *Coordinator) enqueueAutoRewards(ctx context.Context, doneIDs []string) error {
	if !c.Config.Agency.AutoEvaluate || len(doneIDs) == 0 {
		return nil
	}
	evaluator := c.Config.Agency.EvaluatorAgent
	if evaluator == nil || *evaluator == "" {
		return nil
	}

	g, err := graphstore.Load(c.graphPath())
	if err != nil {
		return fmt.Errorf("coordinator: load graph for auto-reward: %w", err)
	}
	changed := false
	for _, id := range doneIDs {
		evalID := "eval-" + id
		if g.GetTask(evalID) != nil {
			continue // already enqueued (e.g. a retried reap pass)
		}
		title := "Evaluate " + id
		desc := "Evaluate task " + id + " and record a reward via `wg reward`."
		t := &graph.Task{
			ID:          evalID,
			Title:       title,
			Description: &desc,
			Status:      graph.StatusOpen,
			Assigned:    nil,
			BlockedBy:   []string{id},
			Agent:       evaluator,
		}
		g.AddNode(graph.NewTaskNode(t))
		changed = true
		c.Metrics.RewardCount(ctx, 1)
	}
	if !changed {
		return nil
	}
	return graphstore.Save(g, c.graphPath())
}

// Shutdown terminates every known handle (SIGTERM, escalating to SIGKILL
// after grace) and waits for each to exit or the grace period to elapse,
// whichever is first (spec.md 4.7 "Cancellation", §5). Unreaped handles'
// PIDs are left for internal/service to persist into state.json so a fresh
// daemon can adopt them.
func (c *Coordinator) Shutdown(grace time.Duration) map[string]int {
	c.mu.Lock()
	handles := make(map[string]*executor.AgentHandle, len(c.handles))
	for id, h := range c.handles {
		handles[id] = h
	}
	c.mu.Unlock()

	for id, h := range handles {
		if err := h.Terminate(); err != nil {
			c.Logger.Warn("coordinator: SIGTERM failed", "task", id, "error", err)
		}
	}

	deadline := time.After(grace)
	remaining := make(map[string]*executor.AgentHandle, len(handles))
	for id, h := range handles {
		remaining[id] = h
	}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
waitLoop:
	for len(remaining) > 0 {
		select {
		case <-deadline:
			break waitLoop
		case <-ticker.C:
			for id, h := range remaining {
				if !h.IsRunning() {
					delete(remaining, id)
				}
			}
		}
	}

	unreaped := make(map[string]int)
	for id, h := range remaining {
		if err := h.Kill(); err != nil {
			c.Logger.Warn("coordinator: SIGKILL failed", "task", id, "error", err)
		}
		unreaped[id] = h.PID
	}
	return unreaped
}
