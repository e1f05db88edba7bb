// Package evolver implements the subprocess agent that proposes role and
// objective mutations from performance history (spec.md 4.11): tolerant
// extraction of the proposal JSON from the evolver's free-form output,
// structural validation via a bundled rego policy, and application of the
// six proposal kinds against the identity store.
package evolver

import "github.com/wgraph/engine/internal/identity"

// OpKind enumerates the six proposal operations spec.md 4.11 names.
type OpKind string

const (
	OpCreateRole       OpKind = "create_role"
	OpModifyRole       OpKind = "modify_role"
	OpCreateObjective  OpKind = "create_objective"
	OpModifyObjective  OpKind = "modify_objective"
	OpRetireRole       OpKind = "retire_role"
	OpRetireObjective  OpKind = "retire_objective"
)

// RoleFields is the proposed content for a created or modified role.
type RoleFields struct {
	Name           string              `json:"name,omitempty"`
	Description    string              `json:"description,omitempty"`
	Skills         []identity.SkillRef `json:"skills,omitempty"`
	DesiredOutcome string              `json:"desired_outcome,omitempty"`
}

// ObjectiveFields is the proposed content for a created or modified objective.
type ObjectiveFields struct {
	Name                  string   `json:"name,omitempty"`
	Description           string   `json:"description,omitempty"`
	AcceptableTradeoffs   []string `json:"acceptable_tradeoffs,omitempty"`
	UnacceptableTradeoffs []string `json:"unacceptable_tradeoffs,omitempty"`
}

// Proposal is one operation the evolver asks the engine to apply. Role is
// read for create_role/modify_role and Objective for create_objective/
// modify_objective; retire_* operations use neither.
type Proposal struct {
	Op        OpKind           `json:"op"`
	TargetID  string           `json:"target_id,omitempty"` // role/objective id for modify_*/retire_*
	ParentIDs []string         `json:"parent_ids,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Role      *RoleFields      `json:"role,omitempty"`
	Objective *ObjectiveFields `json:"objective,omitempty"`
}

// ProposalSet is the top-level shape the evolver subprocess is expected to
// emit: a JSON object with a "proposals" array, tolerant of surrounding
// markdown commentary (see parse.go).
type ProposalSet struct {
	Proposals []Proposal `json:"proposals"`
}

// AppliedOp records what Apply actually did with one proposal, for the
// caller to log or surface to an operator.
type AppliedOp struct {
	Proposal Proposal
	NewID    string // create_*/modify_*: the resulting content-hash id; retire_*: the retired target id
	Skipped  bool
	Reason   string
}
