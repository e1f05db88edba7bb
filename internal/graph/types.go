// Package graph defines the workgraph's node types: tasks, resources, loop
// edges, and the tagged-union node wrapper that lets the JSONL log carry
// either in one line.
package graph

import (
	"encoding/json"
	"fmt"
)

// NodeKind discriminates the tagged variants persisted on disk. NodeKindActor
// is migration residue from an earlier actor-based model; the store skips it
// on read and never writes it.
type NodeKind string

const (
	NodeKindTask     NodeKind = "task"
	NodeKindResource NodeKind = "resource"
	NodeKindActor    NodeKind = "actor"
)

// Status is the task lifecycle state, kebab-case on the wire.
type Status string

const (
	StatusOpen          Status = "open"
	StatusInProgress    Status = "in-progress"
	StatusPendingReview Status = "pending-review"
	StatusDone          Status = "done"
	StatusBlocked       Status = "blocked"
	StatusFailed        Status = "failed"
	StatusAbandoned     Status = "abandoned"
)

// Terminal reports whether s is one of the terminal statuses (spec.md 3.4 #7).
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusAbandoned:
		return true
	default:
		return false
	}
}

// Estimate is an optional cost/time estimate attached to a task.
type Estimate struct {
	Hours *float64 `json:"hours,omitempty"`
	Cost  *float64 `json:"cost,omitempty"`
}

// LogEntry is one progress note on a task.
type LogEntry struct {
	Timestamp string  `json:"timestamp"`
	Actor     *string `json:"actor,omitempty"`
	Message   string  `json:"message"`
}

// LoopGuardKind discriminates loop-guard variants. TaskStatus is the only
// form defined so far (spec.md 3.2); additional guard kinds would extend
// this without breaking existing edges.
type LoopGuardKind string

const LoopGuardTaskStatus LoopGuardKind = "task_status"

// LoopGuard fires a LoopEdge only when the named task holds the given status.
type LoopGuard struct {
	Kind   LoopGuardKind `json:"kind"`
	Task   string        `json:"task,omitempty"`
	Status Status        `json:"status,omitempty"`
}

// LoopEdge declares that, on the owning task's transition to Done, target is
// re-opened (subject to Guard and MaxIterations). Delay is a duration string
// (e.g. "300s") per the spec's open question on units — we settle on Go's
// time.ParseDuration grammar since it round-trips unambiguously.
type LoopEdge struct {
	Target        string     `json:"target"`
	Guard         *LoopGuard `json:"guard,omitempty"`
	MaxIterations uint32     `json:"max_iterations"`
	Delay         *string    `json:"delay,omitempty"`
}

// Task is the sole executable node kind.
type Task struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Description   *string     `json:"description,omitempty"`
	Status        Status      `json:"status"`
	Assigned      *string     `json:"assigned,omitempty"`
	Estimate      *Estimate   `json:"estimate,omitempty"`
	Blocks        []string    `json:"blocks,omitempty"`
	BlockedBy     []string    `json:"blocked_by,omitempty"`
	Requires      []string    `json:"requires,omitempty"`
	Skills        []string    `json:"skills,omitempty"`
	Tags          []string    `json:"tags,omitempty"`
	Inputs        []string    `json:"inputs,omitempty"`
	Deliverables  []string    `json:"deliverables,omitempty"`
	Artifacts     []string    `json:"artifacts,omitempty"`
	Exec          *string     `json:"exec,omitempty"`
	Verify        *string     `json:"verify,omitempty"`
	NotBefore     *string     `json:"not_before,omitempty"`
	ReadyAfter    *string     `json:"ready_after,omitempty"`
	CreatedAt     *string     `json:"created_at,omitempty"`
	StartedAt     *string     `json:"started_at,omitempty"`
	CompletedAt   *string     `json:"completed_at,omitempty"`
	Log           []LogEntry  `json:"log,omitempty"`
	RetryCount    uint32      `json:"retry_count,omitempty"`
	MaxRetries    *uint32     `json:"max_retries,omitempty"`
	FailureReason *string     `json:"failure_reason,omitempty"`
	Agent         *string     `json:"agent,omitempty"`
	Model         *string     `json:"model,omitempty"`
	LoopsTo       []LoopEdge  `json:"loops_to,omitempty"`
	LoopIteration uint32      `json:"loop_iteration,omitempty"`
}

// Resource is a named capacity referenced by task Requires.
type Resource struct {
	ID        string   `json:"id"`
	Name      *string  `json:"name,omitempty"`
	Type      *string  `json:"type,omitempty"`
	Available *float64 `json:"available,omitempty"`
	Unit      *string  `json:"unit,omitempty"`
}

// TrustLevel is legacy Actor metadata, carried only for the migration path.
type TrustLevel string

const (
	TrustVerified    TrustLevel = "verified"
	TrustProvisional TrustLevel = "provisional"
	TrustUnknown     TrustLevel = "unknown"
)

// Actor is the pre-identity-subsystem operator record. Nothing in this
// codebase constructs a new Actor; check_all / graphstore.Load skip "kind":
// "actor" lines on read (spec.md 4.1) and the type exists only so that skip
// logic has a real struct behind it.
type Actor struct {
	ID            string     `json:"id"`
	Name          *string    `json:"name,omitempty"`
	Role          *string    `json:"role,omitempty"`
	Rate          *float64   `json:"rate,omitempty"`
	Capacity      *float64   `json:"capacity,omitempty"`
	Capabilities  []string   `json:"capabilities,omitempty"`
	ContextLimit  *uint64    `json:"context_limit,omitempty"`
	TrustLevel    TrustLevel `json:"trust_level,omitempty"`
	LastSeen      *string    `json:"last_seen,omitempty"`
}

// Node is the tagged union persisted one-per-line in graph.jsonl. Exactly one
// of Task/Resource/Actor is non-nil, matching Kind.
type Node struct {
	Kind     NodeKind
	Task     *Task
	Resource *Resource
	Actor    *Actor
}

// ID returns the node's identifier regardless of kind.
func (n *Node) ID() string {
	switch n.Kind {
	case NodeKindTask:
		return n.Task.ID
	case NodeKindResource:
		return n.Resource.ID
	case NodeKindActor:
		return n.Actor.ID
	default:
		return ""
	}
}

// NewTaskNode wraps t as a Node.
func NewTaskNode(t *Task) *Node { return &Node{Kind: NodeKindTask, Task: t} }

// NewResourceNode wraps r as a Node.
func NewResourceNode(r *Resource) *Node { return &Node{Kind: NodeKindResource, Resource: r} }

// MarshalJSON flattens the tagged union so "kind" sits alongside the
// variant's own fields, matching the on-disk shape (spec.md 4.1, 6).
func (n Node) MarshalJSON() ([]byte, error) {
	var inner any
	switch n.Kind {
	case NodeKindTask:
		inner = n.Task
	case NodeKindResource:
		inner = n.Resource
	case NodeKindActor:
		inner = n.Actor
	default:
		return nil, fmt.Errorf("graph: node has no kind set")
	}
	body, err := json.Marshal(inner)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kindRaw, err := json.Marshal(n.Kind)
	if err != nil {
		return nil, err
	}
	fields["kind"] = kindRaw
	return json.Marshal(fields)
}

// UnmarshalJSON reads the "kind" tag, then decodes the remaining fields into
// the matching variant struct. Unknown fields are ignored (spec.md 6).
func (n *Node) UnmarshalJSON(data []byte) error {
	var tag struct {
		Kind NodeKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	switch tag.Kind {
	case NodeKindTask:
		var t Task
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		n.Kind, n.Task = NodeKindTask, &t
	case NodeKindResource:
		var r Resource
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		n.Kind, n.Resource = NodeKindResource, &r
	case NodeKindActor:
		var a Actor
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		n.Kind, n.Actor = NodeKindActor, &a
	default:
		return fmt.Errorf("graph: unknown node kind %q", tag.Kind)
	}
	return nil
}
