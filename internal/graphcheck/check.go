// Package graphcheck implements the graph's structural invariant checks:
// blocked_by cycles, orphan references, and loop-edge validity (spec.md 4.2).
package graphcheck

import "github.com/wgraph/engine/internal/graph"

// LoopEdgeIssueKind enumerates the ways a LoopEdge can be invalid.
type LoopEdgeIssueKind string

const (
	TargetNotFound    LoopEdgeIssueKind = "target_not_found"
	ZeroMaxIterations LoopEdgeIssueKind = "zero_max_iterations"
	GuardTaskNotFound LoopEdgeIssueKind = "guard_task_not_found"
	SelfLoop          LoopEdgeIssueKind = "self_loop"
)

// LoopEdgeIssue names the offending edge and why it's invalid. GuardTask is
// populated only when Kind == GuardTaskNotFound.
type LoopEdgeIssue struct {
	From      string
	Target    string
	Kind      LoopEdgeIssueKind
	GuardTask string
}

// OrphanRef is a dangling reference from one node to a missing one.
type OrphanRef struct {
	From     string
	To       string
	Relation string // "blocked_by" | "blocks" | "requires"
}

// Result is the combined output of check_all.
type Result struct {
	Cycles         [][]string
	OrphanRefs     []OrphanRef
	LoopEdgeIssues []LoopEdgeIssue
	OK             bool
}

// CheckCycles performs a depth-first search over blocked_by edges, reporting
// each distinct cycle as the suffix of the DFS path starting at the
// back-edge's target (spec.md 4.2).
func CheckCycles(g *graph.Graph) [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	var path []string

	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		recStack[id] = true
		path = append(path, id)

		if t := g.GetTask(id); t != nil {
			for _, dep := range t.BlockedBy {
				if !visited[dep] {
					visit(dep)
				} else if recStack[dep] {
					for i, p := range path {
						if p == dep {
							cycle := append([]string(nil), path[i:]...)
							cycles = append(cycles, cycle)
							break
						}
					}
				}
			}
		}

		path = path[:len(path)-1]
		recStack[id] = false
	}

	for _, t := range g.Tasks() {
		if !visited[t.ID] {
			visit(t.ID)
		}
	}
	return cycles
}

// CheckLoopEdges validates every LoopEdge on every task, possibly emitting
// more than one issue per edge (e.g. a self-loop with MaxIterations == 0).
func CheckLoopEdges(g *graph.Graph) []LoopEdgeIssue {
	var issues []LoopEdgeIssue
	for _, t := range g.Tasks() {
		for _, edge := range t.LoopsTo {
			if edge.Target == t.ID {
				issues = append(issues, LoopEdgeIssue{From: t.ID, Target: edge.Target, Kind: SelfLoop})
			}
			if g.GetTask(edge.Target) == nil {
				issues = append(issues, LoopEdgeIssue{From: t.ID, Target: edge.Target, Kind: TargetNotFound})
			}
			if edge.MaxIterations == 0 {
				issues = append(issues, LoopEdgeIssue{From: t.ID, Target: edge.Target, Kind: ZeroMaxIterations})
			}
			if edge.Guard != nil && edge.Guard.Kind == graph.LoopGuardTaskStatus && edge.Guard.Task != "" {
				if g.GetTask(edge.Guard.Task) == nil {
					issues = append(issues, LoopEdgeIssue{
						From: t.ID, Target: edge.Target, Kind: GuardTaskNotFound, GuardTask: edge.Guard.Task,
					})
				}
			}
		}
	}
	return issues
}

// CheckOrphans reports blocked_by/blocks references to any missing node, and
// requires references to anything that is not a Resource — including a task
// ID (spec.md open question #1: preserved as-is, not relaxed).
func CheckOrphans(g *graph.Graph) []OrphanRef {
	var orphans []OrphanRef
	for _, t := range g.Tasks() {
		for _, ref := range t.BlockedBy {
			if g.GetNode(ref) == nil {
				orphans = append(orphans, OrphanRef{From: t.ID, To: ref, Relation: "blocked_by"})
			}
		}
		for _, ref := range t.Blocks {
			if g.GetNode(ref) == nil {
				orphans = append(orphans, OrphanRef{From: t.ID, To: ref, Relation: "blocks"})
			}
		}
		for _, ref := range t.Requires {
			if g.GetResource(ref) == nil {
				orphans = append(orphans, OrphanRef{From: t.ID, To: ref, Relation: "requires"})
			}
		}
	}
	return orphans
}

// CheckAll runs every check. The graph is invalid iff any cycle, orphan, or
// loop-edge issue exists; loops-to cycles are intentional and never counted
// here (CheckCycles only follows blocked_by).
func CheckAll(g *graph.Graph) Result {
	cycles := CheckCycles(g)
	orphans := CheckOrphans(g)
	loopIssues := CheckLoopEdges(g)
	return Result{
		Cycles:         cycles,
		OrphanRefs:     orphans,
		LoopEdgeIssues: loopIssues,
		OK:             len(cycles) == 0 && len(orphans) == 0 && len(loopIssues) == 0,
	}
}
