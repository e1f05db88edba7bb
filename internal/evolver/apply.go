package evolver

import (
	"context"
	"fmt"

	"github.com/wgraph/engine/internal/identity"
)

// Apply validates and applies every proposal in set against store in order,
// returning one AppliedOp per proposal. A proposal that fails validation or
// whose target cannot be resolved is skipped (not aborted) — one bad
// proposal in a batch never blocks the rest (spec.md 7: per-item errors
// don't abort the batch).
func Apply(ctx context.Context, v *Validator, store *identity.Store, runID string, set ProposalSet) ([]AppliedOp, error) {
	results := make([]AppliedOp, 0, len(set.Proposals))
	for _, p := range set.Proposals {
		ok, err := v.Validate(ctx, p)
		if err != nil {
			return results, fmt.Errorf("evolver: validate proposal for op %q: %w", p.Op, err)
		}
		if !ok {
			results = append(results, AppliedOp{Proposal: p, Skipped: true, Reason: "rejected by proposal policy"})
			continue
		}
		applied, err := applyOne(store, runID, p)
		if err != nil {
			results = append(results, AppliedOp{Proposal: p, Skipped: true, Reason: err.Error()})
			continue
		}
		results = append(results, applied)
	}
	return results, nil
}

func applyOne(store *identity.Store, runID string, p Proposal) (AppliedOp, error) {
	switch p.Op {
	case OpCreateRole:
		return applyCreateRole(store, runID, p)
	case OpModifyRole:
		return applyModifyRole(store, runID, p)
	case OpCreateObjective:
		return applyCreateObjective(store, runID, p)
	case OpModifyObjective:
		return applyModifyObjective(store, runID, p)
	case OpRetireRole:
		if err := store.RetireRole(p.TargetID); err != nil {
			return AppliedOp{}, err
		}
		return AppliedOp{Proposal: p, NewID: p.TargetID}, nil
	case OpRetireObjective:
		if err := store.RetireObjective(p.TargetID); err != nil {
			return AppliedOp{}, err
		}
		return AppliedOp{Proposal: p, NewID: p.TargetID}, nil
	default:
		return AppliedOp{}, fmt.Errorf("unknown op %q", p.Op)
	}
}

func applyCreateRole(store *identity.Store, runID string, p Proposal) (AppliedOp, error) {
	if p.Role == nil {
		return AppliedOp{}, fmt.Errorf("create_role: missing role fields")
	}
	f := p.Role
	id := identity.ContentHashRole(f.Skills, f.DesiredOutcome, f.Description)
	lineage := identity.DefaultLineage()
	if len(p.ParentIDs) > 0 {
		parent, err := store.LoadRole(p.ParentIDs[0])
		if err == nil {
			if len(p.ParentIDs) > 1 {
				maxGen := parent.Lineage.Generation
				for _, pid := range p.ParentIDs[1:] {
					if other, err := store.LoadRole(pid); err == nil && other.Lineage.Generation > maxGen {
						maxGen = other.Lineage.Generation
					}
				}
				lineage = identity.CrossoverLineage(p.ParentIDs, maxGen, runID)
			} else {
				lineage = identity.MutationLineage(parent.ID, parent.Lineage.Generation, runID)
			}
		}
	}
	role := &identity.Role{
		ID:             id,
		Name:           f.Name,
		Description:    f.Description,
		Skills:         f.Skills,
		DesiredOutcome: f.DesiredOutcome,
		Lineage:        lineage,
	}
	if err := store.SaveRole(role); err != nil {
		return AppliedOp{}, err
	}
	return AppliedOp{Proposal: p, NewID: id}, nil
}

func applyModifyRole(store *identity.Store, runID string, p Proposal) (AppliedOp, error) {
	if p.Role == nil {
		return AppliedOp{}, fmt.Errorf("modify_role: missing role fields")
	}
	parent, err := store.FindRoleByPrefix(p.TargetID)
	if err != nil {
		return AppliedOp{}, fmt.Errorf("modify_role: resolve target %q: %w", p.TargetID, err)
	}
	f := p.Role
	skills := f.Skills
	if skills == nil {
		skills = parent.Skills
	}
	desired := f.DesiredOutcome
	if desired == "" {
		desired = parent.DesiredOutcome
	}
	desc := f.Description
	if desc == "" {
		desc = parent.Description
	}
	id := identity.ContentHashRole(skills, desired, desc)
	name := f.Name
	if name == "" {
		name = parent.Name
	}
	role := &identity.Role{
		ID:             id,
		Name:           name,
		Description:    desc,
		Skills:         skills,
		DesiredOutcome: desired,
		Performance:    parent.Performance,
		Lineage:        identity.MutationLineage(parent.ID, parent.Lineage.Generation, runID),
	}
	if err := store.SaveRole(role); err != nil {
		return AppliedOp{}, err
	}
	return AppliedOp{Proposal: p, NewID: id}, nil
}

func applyCreateObjective(store *identity.Store, runID string, p Proposal) (AppliedOp, error) {
	if p.Objective == nil {
		return AppliedOp{}, fmt.Errorf("create_objective: missing objective fields")
	}
	f := p.Objective
	id := identity.ContentHashObjective(f.AcceptableTradeoffs, f.UnacceptableTradeoffs, f.Description)
	lineage := identity.DefaultLineage()
	if len(p.ParentIDs) > 0 {
		parent, err := store.LoadObjective(p.ParentIDs[0])
		if err == nil {
			if len(p.ParentIDs) > 1 {
				maxGen := parent.Lineage.Generation
				for _, pid := range p.ParentIDs[1:] {
					if other, err := store.LoadObjective(pid); err == nil && other.Lineage.Generation > maxGen {
						maxGen = other.Lineage.Generation
					}
				}
				lineage = identity.CrossoverLineage(p.ParentIDs, maxGen, runID)
			} else {
				lineage = identity.MutationLineage(parent.ID, parent.Lineage.Generation, runID)
			}
		}
	}
	obj := &identity.Objective{
		ID:                    id,
		Name:                  f.Name,
		Description:           f.Description,
		AcceptableTradeoffs:   f.AcceptableTradeoffs,
		UnacceptableTradeoffs: f.UnacceptableTradeoffs,
		Lineage:               lineage,
	}
	if err := store.SaveObjective(obj); err != nil {
		return AppliedOp{}, err
	}
	return AppliedOp{Proposal: p, NewID: id}, nil
}

func applyModifyObjective(store *identity.Store, runID string, p Proposal) (AppliedOp, error) {
	if p.Objective == nil {
		return AppliedOp{}, fmt.Errorf("modify_objective: missing objective fields")
	}
	parent, err := store.FindObjectiveByPrefix(p.TargetID)
	if err != nil {
		return AppliedOp{}, fmt.Errorf("modify_objective: resolve target %q: %w", p.TargetID, err)
	}
	f := p.Objective
	acceptable := f.AcceptableTradeoffs
	if acceptable == nil {
		acceptable = parent.AcceptableTradeoffs
	}
	unacceptable := f.UnacceptableTradeoffs
	if unacceptable == nil {
		unacceptable = parent.UnacceptableTradeoffs
	}
	desc := f.Description
	if desc == "" {
		desc = parent.Description
	}
	id := identity.ContentHashObjective(acceptable, unacceptable, desc)
	name := f.Name
	if name == "" {
		name = parent.Name
	}
	obj := &identity.Objective{
		ID:                    id,
		Name:                  name,
		Description:           desc,
		AcceptableTradeoffs:   acceptable,
		UnacceptableTradeoffs: unacceptable,
		Performance:           parent.Performance,
		Lineage:               identity.MutationLineage(parent.ID, parent.Lineage.Generation, runID),
	}
	if err := store.SaveObjective(obj); err != nil {
		return AppliedOp{}, err
	}
	return AppliedOp{Proposal: p, NewID: id}, nil
}
