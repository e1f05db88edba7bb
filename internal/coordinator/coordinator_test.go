package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wgraph/engine/internal/config"
	"github.com/wgraph/engine/internal/graph"
	"github.com/wgraph/engine/internal/graphstore"
)

func writeFileHelper(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func newTestCoordinator(t *testing.T) (*Coordinator, string) {
	t.Helper()
	wgDir := t.TempDir()
	cfg := config.Default()
	cfg.Coordinator.Executor = "default" // avoid shelling out to the real claude CLI in tests
	c := New(wgDir, wgDir, cfg)
	if err := c.Registry.Init(); err != nil {
		t.Fatalf("Registry.Init: %v", err)
	}
	return c, wgDir
}

func seedGraph(t *testing.T, wgDir string, g *graph.Graph) {
	t.Helper()
	if err := graphstore.Save(g, filepath.Join(wgDir, "graph.jsonl")); err != nil {
		t.Fatalf("seed graph: %v", err)
	}
}

func loadGraph(t *testing.T, wgDir string) *graph.Graph {
	t.Helper()
	g, err := graphstore.Load(filepath.Join(wgDir, "graph.jsonl"))
	if err != nil {
		t.Fatalf("load graph: %v", err)
	}
	return g
}

func waitForReap(t *testing.T, c *Coordinator, timeout time.Duration) []string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		doneIDs, err := c.reap(context.Background())
		if err != nil {
			t.Fatalf("reap: %v", err)
		}
		if len(doneIDs) > 0 {
			return doneIDs
		}
		if c.RunningCount() == 0 {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a task to be reaped")
	return nil
}

func TestClaimAndDispatchClaimsReadyTaskAndReapCompletesIt(t *testing.T) {
	c, wgDir := newTestCoordinator(t)
	g := graph.New()
	g.AddNode(graph.NewTaskNode(&graph.Task{ID: "t1", Title: "first task", Status: graph.StatusOpen}))
	seedGraph(t, wgDir, g)

	if err := c.claimAndDispatch(context.Background()); err != nil {
		t.Fatalf("claimAndDispatch: %v", err)
	}
	if c.RunningCount() != 1 {
		t.Fatalf("RunningCount = %d, want 1", c.RunningCount())
	}

	got := loadGraph(t, wgDir)
	t1 := got.GetTask("t1")
	if t1.Status != graph.StatusInProgress || t1.Assigned == nil {
		t.Fatalf("t1 after claim = %+v", t1)
	}

	doneIDs := waitForReap(t, c, 2*time.Second)
	if len(doneIDs) != 1 || doneIDs[0] != "t1" {
		t.Fatalf("doneIDs = %v", doneIDs)
	}
	got = loadGraph(t, wgDir)
	if got.GetTask("t1").Status != graph.StatusDone {
		t.Fatalf("t1 status after reap = %v", got.GetTask("t1").Status)
	}
}

func TestClaimAndDispatchRespectsMaxAgentsSlots(t *testing.T) {
	c, wgDir := newTestCoordinator(t)
	c.Config.Coordinator.MaxAgents = 1
	g := graph.New()
	g.AddNode(graph.NewTaskNode(&graph.Task{ID: "t1", Title: "first", Status: graph.StatusOpen}))
	g.AddNode(graph.NewTaskNode(&graph.Task{ID: "t2", Title: "second", Status: graph.StatusOpen}))
	seedGraph(t, wgDir, g)

	if err := c.claimAndDispatch(context.Background()); err != nil {
		t.Fatalf("claimAndDispatch: %v", err)
	}
	if c.RunningCount() != 1 {
		t.Fatalf("RunningCount = %d, want exactly 1 slot filled", c.RunningCount())
	}
	waitForReap(t, c, 2*time.Second)
}

func TestClaimAndDispatchSkipsBlockedTask(t *testing.T) {
	c, wgDir := newTestCoordinator(t)
	g := graph.New()
	g.AddNode(graph.NewTaskNode(&graph.Task{ID: "blocker", Title: "blocker", Status: graph.StatusOpen}))
	g.AddNode(graph.NewTaskNode(&graph.Task{ID: "t1", Title: "blocked", Status: graph.StatusOpen, BlockedBy: []string{"blocker"}}))
	seedGraph(t, wgDir, g)

	if err := c.claimAndDispatch(context.Background()); err != nil {
		t.Fatalf("claimAndDispatch: %v", err)
	}
	if c.RunningCount() != 1 {
		t.Fatalf("RunningCount = %d, want 1 (only the blocker claimable)", c.RunningCount())
	}
	got := loadGraph(t, wgDir)
	if got.GetTask("t1").Status != graph.StatusOpen {
		t.Fatalf("blocked task should remain open, got %v", got.GetTask("t1").Status)
	}
	waitForReap(t, c, 2*time.Second)
}

func TestReapReopensFailedTaskWithinRetryBudget(t *testing.T) {
	c, wgDir := newTestCoordinator(t)
	g := graph.New()
	maxRetries := uint32(3)
	g.AddNode(graph.NewTaskNode(&graph.Task{ID: "t1", Title: "t1", Status: graph.StatusOpen, MaxRetries: &maxRetries}))
	seedGraph(t, wgDir, g)

	// Use the "default" executor but point its command at something that
	// exits non-zero, so reap takes the failure branch.
	cfgPath := filepath.Join(wgDir, "executors", "default.toml")
	if err := writeFailingDefaultConfig(cfgPath); err != nil {
		t.Fatalf("write failing executor config: %v", err)
	}

	if err := c.claimAndDispatch(context.Background()); err != nil {
		t.Fatalf("claimAndDispatch: %v", err)
	}
	waitForReap(t, c, 2*time.Second)

	got := loadGraph(t, wgDir)
	t1 := got.GetTask("t1")
	if t1.Status != graph.StatusOpen {
		t.Fatalf("expected the task to be reopened for retry, got %v", t1.Status)
	}
	if t1.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", t1.RetryCount)
	}
	if t1.FailureReason == nil {
		t.Fatal("expected a failure reason to be recorded")
	}
}

func TestReapMarksFailedWhenRetriesExhausted(t *testing.T) {
	c, wgDir := newTestCoordinator(t)
	g := graph.New()
	maxRetries := uint32(0)
	g.AddNode(graph.NewTaskNode(&graph.Task{ID: "t1", Title: "t1", Status: graph.StatusOpen, MaxRetries: &maxRetries}))
	seedGraph(t, wgDir, g)

	cfgPath := filepath.Join(wgDir, "executors", "default.toml")
	if err := writeFailingDefaultConfig(cfgPath); err != nil {
		t.Fatalf("write failing executor config: %v", err)
	}

	if err := c.claimAndDispatch(context.Background()); err != nil {
		t.Fatalf("claimAndDispatch: %v", err)
	}
	waitForReap(t, c, 2*time.Second)

	got := loadGraph(t, wgDir)
	if got.GetTask("t1").Status != graph.StatusFailed {
		t.Fatalf("expected status Failed once retries are exhausted, got %v", got.GetTask("t1").Status)
	}
}

func writeFailingDefaultConfig(path string) error {
	const content = "[executor]\ntype = \"default\"\ncommand = \"sh\"\nargs = [\"-c\", \"exit 1\"]\n"
	return writeFileHelper(path, content)
}

func TestFireLoopEdgesReopensTargetWithinMaxIterations(t *testing.T) {
	c, wgDir := newTestCoordinator(t)
	g := graph.New()
	g.AddNode(graph.NewTaskNode(&graph.Task{
		ID: "t1", Title: "t1", Status: graph.StatusDone,
		LoopsTo: []graph.LoopEdge{{Target: "t2", MaxIterations: 3}},
	}))
	g.AddNode(graph.NewTaskNode(&graph.Task{ID: "t2", Title: "t2", Status: graph.StatusDone, LoopIteration: 0}))
	seedGraph(t, wgDir, g)

	if err := c.fireLoopEdges(context.Background(), []string{"t1"}); err != nil {
		t.Fatalf("fireLoopEdges: %v", err)
	}
	got := loadGraph(t, wgDir)
	t2 := got.GetTask("t2")
	if t2.Status != graph.StatusOpen {
		t.Fatalf("t2 status = %v, want Open after the loop edge fires", t2.Status)
	}
	if t2.LoopIteration != 1 {
		t.Fatalf("LoopIteration = %d, want 1", t2.LoopIteration)
	}
}

func TestFireLoopEdgesStopsAtMaxIterations(t *testing.T) {
	c, wgDir := newTestCoordinator(t)
	g := graph.New()
	g.AddNode(graph.NewTaskNode(&graph.Task{
		ID: "t1", Title: "t1", Status: graph.StatusDone,
		LoopsTo: []graph.LoopEdge{{Target: "t2", MaxIterations: 1}},
	}))
	g.AddNode(graph.NewTaskNode(&graph.Task{ID: "t2", Title: "t2", Status: graph.StatusDone, LoopIteration: 1}))
	seedGraph(t, wgDir, g)

	if err := c.fireLoopEdges(context.Background(), []string{"t1"}); err != nil {
		t.Fatalf("fireLoopEdges: %v", err)
	}
	got := loadGraph(t, wgDir)
	if got.GetTask("t2").Status != graph.StatusDone {
		t.Fatal("a loop edge at its max iteration should not reopen the target")
	}
}

func TestFireLoopEdgesRespectsGuard(t *testing.T) {
	c, wgDir := newTestCoordinator(t)
	g := graph.New()
	g.AddNode(graph.NewTaskNode(&graph.Task{
		ID: "t1", Title: "t1", Status: graph.StatusDone,
		LoopsTo: []graph.LoopEdge{{
			Target:        "t2",
			MaxIterations: 3,
			Guard:         &graph.LoopGuard{Kind: graph.LoopGuardTaskStatus, Task: "gate", Status: graph.StatusDone},
		}},
	}))
	g.AddNode(graph.NewTaskNode(&graph.Task{ID: "t2", Title: "t2", Status: graph.StatusDone}))
	g.AddNode(graph.NewTaskNode(&graph.Task{ID: "gate", Title: "gate", Status: graph.StatusOpen}))
	seedGraph(t, wgDir, g)

	if err := c.fireLoopEdges(context.Background(), []string{"t1"}); err != nil {
		t.Fatalf("fireLoopEdges: %v", err)
	}
	got := loadGraph(t, wgDir)
	if got.GetTask("t2").Status != graph.StatusDone {
		t.Fatal("the loop edge should not fire while its guard task is not yet in the required status")
	}
}

func TestEnqueueAutoRewardsCreatesEvaluatorTask(t *testing.T) {
	c, wgDir := newTestCoordinator(t)
	evaluator := "evaluator-agent"
	c.Config.Agency.AutoEvaluate = true
	c.Config.Agency.EvaluatorAgent = &evaluator

	g := graph.New()
	g.AddNode(graph.NewTaskNode(&graph.Task{ID: "t1", Title: "t1", Status: graph.StatusDone}))
	seedGraph(t, wgDir, g)

	if err := c.enqueueAutoRewards(context.Background(), []string{"t1"}); err != nil {
		t.Fatalf("enqueueAutoRewards: %v", err)
	}
	got := loadGraph(t, wgDir)
	evalTask := got.GetTask("eval-t1")
	if evalTask == nil {
		t.Fatal("expected an eval-t1 task to be enqueued")
	}
	if len(evalTask.BlockedBy) != 1 || evalTask.BlockedBy[0] != "t1" {
		t.Fatalf("BlockedBy = %v", evalTask.BlockedBy)
	}
	if evalTask.Agent == nil || *evalTask.Agent != evaluator {
		t.Fatalf("Agent = %v", evalTask.Agent)
	}
}

func TestEnqueueAutoRewardsNoopWhenDisabled(t *testing.T) {
	c, wgDir := newTestCoordinator(t)
	g := graph.New()
	g.AddNode(graph.NewTaskNode(&graph.Task{ID: "t1", Title: "t1", Status: graph.StatusDone}))
	seedGraph(t, wgDir, g)

	if err := c.enqueueAutoRewards(context.Background(), []string{"t1"}); err != nil {
		t.Fatalf("enqueueAutoRewards: %v", err)
	}
	got := loadGraph(t, wgDir)
	if got.GetTask("eval-t1") != nil {
		t.Fatal("auto-evaluate is disabled by default, no eval task should be created")
	}
}

func TestEnqueueAutoRewardsDoesNotDuplicateOnRetry(t *testing.T) {
	c, wgDir := newTestCoordinator(t)
	evaluator := "evaluator-agent"
	c.Config.Agency.AutoEvaluate = true
	c.Config.Agency.EvaluatorAgent = &evaluator

	g := graph.New()
	g.AddNode(graph.NewTaskNode(&graph.Task{ID: "t1", Title: "t1", Status: graph.StatusDone}))
	seedGraph(t, wgDir, g)

	if err := c.enqueueAutoRewards(context.Background(), []string{"t1"}); err != nil {
		t.Fatalf("first enqueueAutoRewards: %v", err)
	}
	if err := c.enqueueAutoRewards(context.Background(), []string{"t1"}); err != nil {
		t.Fatalf("second enqueueAutoRewards: %v", err)
	}

	got := loadGraph(t, wgDir)
	count := 0
	for _, task := range got.Tasks() {
		if task.ID == "eval-t1" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one eval-t1 task across retried passes, got %d", count)
	}
}

func TestResolveRemoteDepUnparsableDepIsNotResolved(t *testing.T) {
	c, _ := newTestCoordinator(t)
	resolver := c.resolveRemoteDep(context.Background())
	if _, ok := resolver("local-task-no-colon"); ok {
		t.Fatal("a colon-less local dependency should not be claimed as remote")
	}
}

func TestResolveRemoteDepUnreachablePeerIsNotResolved(t *testing.T) {
	c, _ := newTestCoordinator(t)
	resolver := c.resolveRemoteDep(context.Background())
	if _, ok := resolver("no-such-peer:some-task"); ok {
		t.Fatal("an unreachable peer should not resolve to a status")
	}
}

func TestShutdownTerminatesRunningHandles(t *testing.T) {
	c, wgDir := newTestCoordinator(t)
	cfgPath := filepath.Join(wgDir, "executors", "default.toml")
	if err := writeFileHelper(cfgPath, "[executor]\ntype = \"default\"\ncommand = \"sleep\"\nargs = [\"30\"]\n"); err != nil {
		t.Fatalf("write executor config: %v", err)
	}
	g := graph.New()
	g.AddNode(graph.NewTaskNode(&graph.Task{ID: "t1", Title: "t1", Status: graph.StatusOpen}))
	seedGraph(t, wgDir, g)

	if err := c.claimAndDispatch(context.Background()); err != nil {
		t.Fatalf("claimAndDispatch: %v", err)
	}
	if c.RunningCount() != 1 {
		t.Fatalf("RunningCount = %d, want 1", c.RunningCount())
	}

	unreaped := c.Shutdown(2 * time.Second)
	if len(unreaped) != 0 {
		t.Fatalf("expected SIGTERM to reap the handle within grace, got unreaped = %v", unreaped)
	}
}
