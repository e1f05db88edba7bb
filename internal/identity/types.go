// Package identity implements the content-addressed identity store: roles,
// objectives, agents, and the reward-recording pipeline that updates all
// three transactionally (spec.md 4.3).
package identity

import (
	"encoding/json"
	"time"
)

// SkillRefKind discriminates the four ways a role's skill can be expressed.
type SkillRefKind string

const (
	SkillName   SkillRefKind = "name"
	SkillFile   SkillRefKind = "file"
	SkillURL    SkillRefKind = "url"
	SkillInline SkillRefKind = "inline"
)

// SkillRef is a tagged reference to a skill definition; exactly one of the
// value fields is populated per Kind.
type SkillRef struct {
	Kind  SkillRefKind `yaml:"kind" json:"kind"`
	Name  string       `yaml:"name,omitempty" json:"name,omitempty"`
	Path  string       `yaml:"path,omitempty" json:"path,omitempty"`
	URL   string       `yaml:"url,omitempty" json:"url,omitempty"`
	Value string       `yaml:"value,omitempty" json:"value,omitempty"`
}

// ResolvedSkill is a skill reference with its content loaded.
type ResolvedSkill struct {
	Name    string
	Content string
}

// RewardRef is one reward entry inlined into a RewardHistory. ContextID
// holds the objective_id when stored on a role, the role_id when stored on
// an objective.
type RewardRef struct {
	Value     float64 `yaml:"value" json:"value"`
	TaskID    string  `yaml:"task_id" json:"task_id"`
	Timestamp string  `yaml:"timestamp" json:"timestamp"`
	ContextID string  `yaml:"context_id" json:"context_id"`
}

// RewardHistory aggregates performance for a role or objective.
type RewardHistory struct {
	TaskCount  uint32      `yaml:"task_count" json:"task_count"`
	MeanReward *float64    `yaml:"mean_reward,omitempty" json:"mean_reward,omitempty"`
	Rewards    []RewardRef `yaml:"rewards,omitempty" json:"rewards,omitempty"`
}

// Lineage records where an entity came from: mutation (one parent) or
// crossover (many), and by whom.
type Lineage struct {
	ParentIDs []string  `yaml:"parent_ids,omitempty" json:"parent_ids,omitempty"`
	Generation uint32   `yaml:"generation" json:"generation"`
	CreatedBy  string   `yaml:"created_by" json:"created_by"`
	CreatedAt  time.Time `yaml:"created_at" json:"created_at"`
}

// DefaultLineage is the lineage of a manually created, generation-0 entity.
func DefaultLineage() Lineage {
	return Lineage{Generation: 0, CreatedBy: "human", CreatedAt: time.Now().UTC()}
}

// MutationLineage is the lineage of an entity derived by mutating a single
// parent.
func MutationLineage(parentID string, parentGeneration uint32, runID string) Lineage {
	return Lineage{
		ParentIDs:  []string{parentID},
		Generation: parentGeneration + 1,
		CreatedBy:  "evolver-" + runID,
		CreatedAt:  time.Now().UTC(),
	}
}

// CrossoverLineage is the lineage of an entity derived from N parents.
func CrossoverLineage(parentIDs []string, maxParentGeneration uint32, runID string) Lineage {
	return Lineage{
		ParentIDs:  append([]string(nil), parentIDs...),
		Generation: maxParentGeneration + 1,
		CreatedBy:  "evolver-" + runID,
		CreatedAt:  time.Now().UTC(),
	}
}

// Role is a content-addressed description of skills, desired outcome, and
// narrative — what an agent does. ID = SHA-256(skills, desired_outcome,
// description).
type Role struct {
	ID             string        `yaml:"id" json:"id"`
	Name           string        `yaml:"name" json:"name"`
	Description    string        `yaml:"description" json:"description"`
	Skills         []SkillRef    `yaml:"skills,omitempty" json:"skills,omitempty"`
	DesiredOutcome string        `yaml:"desired_outcome" json:"desired_outcome"`
	Performance    RewardHistory `yaml:"performance" json:"performance"`
	Lineage        Lineage       `yaml:"lineage" json:"lineage"`
}

// Objective is a content-addressed policy of acceptable/unacceptable
// trade-offs — why an agent acts. ID = SHA-256(acceptable_tradeoffs,
// unacceptable_tradeoffs, description).
type Objective struct {
	ID                    string        `yaml:"id" json:"id"`
	Name                  string        `yaml:"name" json:"name"`
	Description           string        `yaml:"description" json:"description"`
	AcceptableTradeoffs   []string      `yaml:"acceptable_tradeoffs,omitempty" json:"acceptable_tradeoffs,omitempty"`
	UnacceptableTradeoffs []string      `yaml:"unacceptable_tradeoffs,omitempty" json:"unacceptable_tradeoffs,omitempty"`
	Performance           RewardHistory `yaml:"performance" json:"performance"`
	Lineage               Lineage       `yaml:"lineage" json:"lineage"`
}

// TrustLevel mirrors graph.TrustLevel for identity entities.
type TrustLevel string

const (
	TrustVerified    TrustLevel = "verified"
	TrustProvisional TrustLevel = "provisional"
	TrustUnknown     TrustLevel = "unknown"
)

// HumanExecutors lists executor backends representing human operators.
var HumanExecutors = map[string]bool{"matrix": true, "email": true, "shell": true}

// Agent pairs a Role and Objective into a reusable executable identity. ID =
// SHA-256(role_id, objective_id) — order matters (not commutative, spec.md
// 8 round-trip law).
type Agent struct {
	ID           string        `yaml:"id" json:"id"`
	RoleID       string        `yaml:"role_id" json:"role_id"`
	ObjectiveID  string        `yaml:"objective_id" json:"objective_id"`
	Name         string        `yaml:"name" json:"name"`
	Performance  RewardHistory `yaml:"performance" json:"performance"`
	Lineage      Lineage       `yaml:"lineage" json:"lineage"`
	Capabilities []string      `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	Rate         *float64      `yaml:"rate,omitempty" json:"rate,omitempty"`
	Capacity     *float64      `yaml:"capacity,omitempty" json:"capacity,omitempty"`
	TrustLevel   TrustLevel    `yaml:"trust_level,omitempty" json:"trust_level,omitempty"`
	Contact      *string       `yaml:"contact,omitempty" json:"contact,omitempty"`
	Executor     string        `yaml:"executor" json:"executor"`
}

// IsHuman reports whether the agent's executor backend is a human operator.
func (a *Agent) IsHuman() bool { return HumanExecutors[a.Executor] }

// Reward is a standalone, append-only evaluation record.
type Reward struct {
	ID          string             `json:"id"`
	TaskID      string             `json:"task_id"`
	AgentID     string             `json:"agent_id,omitempty"`
	RoleID      string             `json:"role_id"`
	ObjectiveID string             `json:"objective_id"`
	Value       float64            `json:"value"`
	Dimensions  map[string]float64 `json:"dimensions,omitempty"`
	Notes       string             `json:"notes"`
	Evaluator   string             `json:"evaluator"`
	Timestamp   string             `json:"timestamp"`
	Model       *string            `json:"model,omitempty"`
	Source      string             `json:"source"`
}

// UnmarshalJSON accepts the legacy "score" alias for "value" (spec.md
// supplemented feature #3).
func (r *Reward) UnmarshalJSON(data []byte) error {
	type alias Reward
	aux := struct {
		Score *float64 `json:"score"`
		*alias
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Score != nil {
		r.Value = *aux.Score
	}
	if r.Source == "" {
		r.Source = "llm"
	}
	return nil
}
