// Package readiness computes which tasks are runnable, their transitive
// cost, and greedy budget/hours packing with cascading unblock (spec.md
// 4.4). The packing algorithm mirrors the fixed-point "ready now, then
// cascade" shape of the reference fleet's Kahn's-algorithm DAG executor
// (services/orchestrator/dag_engine.go), applied here to a budget frontier
// instead of a worker pool.
package readiness

import (
	"sort"
	"strings"
	"time"

	"github.com/wgraph/engine/internal/graph"
)

// IsTimeReady reports whether t's time gates have elapsed. An absent or
// unparseable timestamp is always treated as ready, never as a block
// (spec.md 4.4).
func IsTimeReady(t *graph.Task, now time.Time) bool {
	return gateElapsed(t.NotBefore, now) && gateElapsed(t.ReadyAfter, now)
}

func gateElapsed(gate *string, now time.Time) bool {
	if gate == nil || *gate == "" {
		return true
	}
	ts, err := time.Parse(time.RFC3339, *gate)
	if err != nil {
		return true
	}
	return !ts.After(now)
}

// RemoteResolver resolves a cross-repo "peer:task" blocked_by entry (spec.md
// 4.9) to the peer's current task status. ok=false means the peer or task
// could not be resolved at all (unreachable) — treated as NOT satisfied,
// per spec.md glossary "Remote" and the conservative rule in 4.9 ("the
// readiness engine treats Unreachable remote deps as not satisfied").
type RemoteResolver func(dep string) (status graph.Status, ok bool)

// ReadyTasks returns the Open tasks that pass IsTimeReady and whose every
// blocked_by entry is either missing from the graph (treated as satisfied)
// or resolves to a Done task. Tasks blocked on an InProgress/Failed/
// PendingReview dependency are not ready. Cross-repo "peer:task" entries are
// treated as satisfied, matching the "missing dep" rule, since no resolver
// is available here — callers that need real federation resolution should
// use ReadyTasksWithRemote.
func ReadyTasks(g *graph.Graph, now time.Time) []*graph.Task {
	return ReadyTasksWithRemote(g, now, nil)
}

// ReadyTasksWithRemote is ReadyTasks, but cross-repo "peer:task" blocked_by
// entries are resolved via resolve instead of being treated as missing. A
// nil resolve reproduces ReadyTasks' behavior exactly.
func ReadyTasksWithRemote(g *graph.Graph, now time.Time, resolve RemoteResolver) []*graph.Task {
	var ready []*graph.Task
	for _, t := range g.Tasks() {
		if t.Status != graph.StatusOpen || !IsTimeReady(t, now) {
			continue
		}
		if allBlockersDone(g, t, resolve) {
			ready = append(ready, t)
		}
	}
	return ready
}

func allBlockersDone(g *graph.Graph, t *graph.Task, resolve RemoteResolver) bool {
	for _, dep := range t.BlockedBy {
		if isRemoteRef(dep) {
			if resolve == nil {
				continue // no resolver configured: treated as satisfied, matches the "missing dep" rule
			}
			status, ok := resolve(dep)
			if !ok || status != graph.StatusDone {
				return false
			}
			continue
		}
		blocker := g.GetTask(dep)
		if blocker == nil {
			continue // missing dep treated as satisfied
		}
		if blocker.Status != graph.StatusDone {
			return false
		}
	}
	return true
}

// isRemoteRef reports whether dep has the "<peer>:<task>" cross-repo shape
// (spec.md 4.9); local task ids never contain a colon.
func isRemoteRef(dep string) bool {
	idx := strings.IndexByte(dep, ':')
	return idx > 0 && idx < len(dep)-1
}

// BlockedBy returns the subset of t's blocked_by targets that exist and are
// not yet Done.
func BlockedBy(g *graph.Graph, id string) []string {
	t := g.GetTask(id)
	if t == nil {
		return nil
	}
	var out []string
	for _, dep := range t.BlockedBy {
		blocker := g.GetTask(dep)
		if blocker != nil && blocker.Status != graph.StatusDone {
			out = append(out, dep)
		}
	}
	return out
}

// CostOf sums estimate.cost over the transitive blocked_by closure of id
// (including id itself), visiting each vertex at most once so cycles in
// blocked_by terminate safely. Missing nodes contribute 0.
func CostOf(g *graph.Graph, id string) float64 {
	visited := make(map[string]bool)
	var total float64
	var visit func(string)
	visit = func(cur string) {
		if visited[cur] {
			return
		}
		visited[cur] = true
		t := g.GetTask(cur)
		if t == nil {
			return
		}
		if t.Estimate != nil && t.Estimate.Cost != nil {
			total += *t.Estimate.Cost
		}
		for _, dep := range t.BlockedBy {
			visit(dep)
		}
	}
	visit(id)
	return total
}

// PackResult is the outcome of a budget/hours packing pass.
type PackResult struct {
	Fits      []string // ids, in insertion order
	Exceeds   []string
	Remaining float64
}

// TasksWithinBudget packs Open tasks greedily by their own estimate.cost
// (not the transitive CostOf closure — spec.md 8 scenario 3 settles this:
// a(10)<-b(20)<-c(30) within budget 100 packs all three with remaining=40,
// i.e. 100-(10+20+30), not 100 minus any transitive sum), with a
// cascading-unblock fixed point (spec.md 4.4).
func TasksWithinBudget(g *graph.Graph, limit float64) PackResult {
	return pack(g, limit, func(id string) float64 { return ownCost(g, id) })
}

// TasksWithinHours is the hours-denominated analogue of TasksWithinBudget.
func TasksWithinHours(g *graph.Graph, limit float64) PackResult {
	return pack(g, limit, func(id string) float64 { return ownHours(g, id) })
}

func ownCost(g *graph.Graph, id string) float64 {
	t := g.GetTask(id)
	if t == nil || t.Estimate == nil || t.Estimate.Cost == nil {
		return 0
	}
	return *t.Estimate.Cost
}

func ownHours(g *graph.Graph, id string) float64 {
	t := g.GetTask(id)
	if t == nil || t.Estimate == nil || t.Estimate.Hours == nil {
		return 0
	}
	return *t.Estimate.Hours
}

func pack(g *graph.Graph, limit float64, metricOf func(id string) float64) PackResult {
	open := g.Tasks()
	ready := make(map[string]bool)
	now := time.Now()
	for _, t := range ReadyTasks(g, now) {
		ready[t.ID] = true
	}

	type candidate struct {
		id     string
		metric float64
	}
	var candidates []candidate
	for _, t := range open {
		if t.Status != graph.StatusOpen {
			continue
		}
		candidates = append(candidates, candidate{id: t.ID, metric: metricOf(t.ID)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		iReady, jReady := ready[candidates[i].id], ready[candidates[j].id]
		if iReady != jReady {
			return iReady
		}
		return candidates[i].metric < candidates[j].metric
	})

	fits := make(map[string]bool)
	var fitOrder []string
	var exceeds []string
	remaining := limit

	for _, c := range candidates {
		if !ready[c.id] {
			exceeds = append(exceeds, c.id)
			continue
		}
		if c.metric <= remaining {
			fits[c.id] = true
			fitOrder = append(fitOrder, c.id)
			remaining -= c.metric
		} else {
			exceeds = append(exceeds, c.id)
		}
	}

	for {
		progressed := false
		var stillExceeds []string
		for _, id := range exceeds {
			t := g.GetTask(id)
			if t == nil {
				continue
			}
			if !cascadeUnblocked(g, t, fits) {
				stillExceeds = append(stillExceeds, id)
				continue
			}
			metric := metricOf(id)
			if metric <= remaining {
				fits[id] = true
				fitOrder = append(fitOrder, id)
				remaining -= metric
				progressed = true
			} else {
				stillExceeds = append(stillExceeds, id)
			}
		}
		exceeds = stillExceeds
		if !progressed {
			break
		}
	}

	return PackResult{Fits: fitOrder, Exceeds: exceeds, Remaining: remaining}
}

// cascadeUnblocked reports whether every blocked_by target of t is either
// already in fits or actually Done.
func cascadeUnblocked(g *graph.Graph, t *graph.Task, fits map[string]bool) bool {
	for _, dep := range t.BlockedBy {
		if fits[dep] {
			continue
		}
		blocker := g.GetTask(dep)
		if blocker != nil && blocker.Status == graph.StatusDone {
			continue
		}
		return false
	}
	return true
}

// BuildReverseIndex maps each blocker ID to the tasks that name it in
// blocked_by, for propagation after a status change.
func BuildReverseIndex(g *graph.Graph) map[string][]string {
	idx := make(map[string][]string)
	for _, t := range g.Tasks() {
		for _, dep := range t.BlockedBy {
			idx[dep] = append(idx[dep], t.ID)
		}
	}
	return idx
}
