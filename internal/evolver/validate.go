package evolver

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

//go:embed policy/proposal.rego
var proposalPolicy string

// Validator runs each proposal through a bundled rego module before it is
// ever applied, grounded on the reference fleet's compile-then-validate
// shape (services/policy-service/opa_engine.go's OPAEngine.LoadPolicies +
// Evaluate) — applied here to one fixed policy document instead of a
// directory of operator-supplied ones.
type Validator struct {
	prepared rego.PreparedEvalQuery
}

// NewValidator compiles the bundled proposal policy once.
func NewValidator(ctx context.Context) (*Validator, error) {
	prepared, err := rego.New(
		rego.Query("data.evolver.allow"),
		rego.Module("proposal.rego", proposalPolicy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("evolver: compile proposal policy: %w", err)
	}
	return &Validator{prepared: prepared}, nil
}

// Validate reports whether p is structurally admissible: a known op kind,
// and a non-empty target id for any modify_*/retire_* operation. It does
// not check that the target's content-hash actually exists — that is
// Apply's job, once the identity store is consulted — this pass rejects
// malformed proposals before any store lookup happens.
func (v *Validator) Validate(ctx context.Context, p Proposal) (bool, error) {
	input := map[string]any{
		"op":        string(p.Op),
		"target_id": p.TargetID,
	}
	results, err := v.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("evolver: evaluate proposal policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	allow, _ := results[0].Expressions[0].Value.(bool)
	return allow, nil
}
