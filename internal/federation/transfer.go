package federation

import (
	"fmt"

	"github.com/wgraph/engine/internal/identity"
)

// EntityFilter restricts a transfer to one entity type, or all of them.
type EntityFilter string

const (
	FilterAll        EntityFilter = "all"
	FilterRoles      EntityFilter = "roles"
	FilterObjectives EntityFilter = "objectives"
	FilterAgents     EntityFilter = "agents"
)

// TransferOptions controls a transfer operation (spec.md 4.9).
type TransferOptions struct {
	DryRun        bool
	NoPerformance bool
	NoRewards     bool
	Force         bool
	EntityIDs     []string
	EntityFilter  EntityFilter
}

// TransferSummary counts what a transfer did.
type TransferSummary struct {
	RolesAdded, RolesUpdated, RolesSkipped             int
	ObjectivesAdded, ObjectivesUpdated, ObjectivesSkipped int
	AgentsAdded, AgentsUpdated, AgentsSkipped          int
	RewardsAdded, RewardsSkipped                       int
}

func (s TransferSummary) String() string {
	return fmt.Sprintf(
		"Roles:       +%d new, %d updated, %d skipped\n"+
			"Objectives:  +%d new, %d updated, %d skipped\n"+
			"Agents:      +%d new, %d updated, %d skipped\n"+
			"Rewards:     +%d new, %d skipped",
		s.RolesAdded, s.RolesUpdated, s.RolesSkipped,
		s.ObjectivesAdded, s.ObjectivesUpdated, s.ObjectivesSkipped,
		s.AgentsAdded, s.AgentsUpdated, s.AgentsSkipped,
		s.RewardsAdded, s.RewardsSkipped,
	)
}

func idSetOf(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// Transfer copies agency entities from source to target, merging rather than
// clobbering unless opts.Force is set. It backs both "pull" (remote→local)
// and "push" (local→remote); the two differ only in which store is which
// (spec.md 4.9).
func Transfer(source, target *identity.Store, opts TransferOptions) (TransferSummary, error) {
	var summary TransferSummary

	if !opts.DryRun {
		if err := target.Init(); err != nil {
			return summary, fmt.Errorf("federation: init target store: %w", err)
		}
	}

	filter := opts.EntityFilter
	if filter == "" {
		filter = FilterAll
	}
	want := idSetOf(opts.EntityIDs)

	srcRoles, err := source.LoadAllRoles()
	if err != nil {
		return summary, fmt.Errorf("federation: load source roles: %w", err)
	}
	srcObjectives, err := source.LoadAllObjectives()
	if err != nil {
		return summary, fmt.Errorf("federation: load source objectives: %w", err)
	}
	srcAgents, err := source.LoadAllAgents()
	if err != nil {
		return summary, fmt.Errorf("federation: load source agents: %w", err)
	}

	roleMap := make(map[string]*identity.Role, len(srcRoles))
	for _, r := range srcRoles {
		roleMap[r.ID] = r
	}
	objectiveMap := make(map[string]*identity.Objective, len(srcObjectives))
	for _, o := range srcObjectives {
		objectiveMap[o.ID] = o
	}

	// agentsToTransfer is srcAgents narrowed to the filter/entity-ids scope,
	// the same way srcRoles/srcObjectives are narrowed below — an agent that
	// isn't going to be transferred (e.g. filter: roles) must not be able to
	// fail an unrelated transfer on its own broken references.
	var agentsToTransfer []*identity.Agent
	if filter == FilterAll || filter == FilterAgents {
		for _, a := range srcAgents {
			if want != nil && !want[a.ID] {
				continue
			}
			agentsToTransfer = append(agentsToTransfer, a)
		}
	}

	// Referential integrity: every agent actually being transferred must
	// have its role/objective present in the source store before anything
	// is written.
	for _, a := range agentsToTransfer {
		if _, ok := roleMap[a.RoleID]; !ok {
			return summary, fmt.Errorf("federation: agent references role %q which does not exist in source store (broken referential integrity)", a.RoleID)
		}
		if _, ok := objectiveMap[a.ObjectiveID]; !ok {
			return summary, fmt.Errorf("federation: agent references objective %q which does not exist in source store (broken referential integrity)", a.ObjectiveID)
		}
	}

	// Load target maps once, up front: treating a corrupt target YAML file
	// as "absent" here would silently overwrite instead of merging.
	tgtRoles, err := target.LoadAllRoles()
	if err != nil {
		return summary, fmt.Errorf("federation: load target roles: %w", err)
	}
	tgtObjectives, err := target.LoadAllObjectives()
	if err != nil {
		return summary, fmt.Errorf("federation: load target objectives: %w", err)
	}
	tgtAgents, err := target.LoadAllAgents()
	if err != nil {
		return summary, fmt.Errorf("federation: load target agents: %w", err)
	}
	tgtRoleByID := make(map[string]*identity.Role, len(tgtRoles))
	for _, r := range tgtRoles {
		tgtRoleByID[r.ID] = r
	}
	tgtObjectiveByID := make(map[string]*identity.Objective, len(tgtObjectives))
	for _, o := range tgtObjectives {
		tgtObjectiveByID[o.ID] = o
	}
	tgtAgentByID := make(map[string]*identity.Agent, len(tgtAgents))
	for _, a := range tgtAgents {
		tgtAgentByID[a.ID] = a
	}

	transferredRoleIDs := map[string]bool{}
	transferredObjectiveIDs := map[string]bool{}
	transferredAgentIDs := map[string]bool{}

	// An agent transfer cascades its role/objective along even when the
	// filter narrows to agents only, so the agent never lands with
	// dangling references in the target store.
	requiredRoleIDs := map[string]bool{}
	requiredObjectiveIDs := map[string]bool{}
	for _, a := range agentsToTransfer {
		requiredRoleIDs[a.RoleID] = true
		requiredObjectiveIDs[a.ObjectiveID] = true
	}

	if filter == FilterAll || filter == FilterRoles || len(requiredRoleIDs) > 0 {
		for _, r := range srcRoles {
			wanted := want == nil || want[r.ID] || requiredRoleIDs[r.ID]
			if !wanted {
				continue
			}
			transferredRoleIDs[r.ID] = true
			existing, ok := tgtRoleByID[r.ID]
			candidate := r
			if opts.NoPerformance {
				clone := *candidate
				clone.Performance = identity.RewardHistory{}
				candidate = &clone
			}
			switch {
			case !ok:
				summary.RolesAdded++
				if !opts.DryRun {
					if err := target.SaveRole(candidate); err != nil {
						return summary, fmt.Errorf("federation: save role %s: %w", r.ID, err)
					}
				}
			case opts.Force || opts.NoPerformance:
				merged := *candidate
				if opts.NoPerformance {
					merged.Performance = existing.Performance
				}
				summary.RolesUpdated++
				if !opts.DryRun {
					if err := target.SaveRole(&merged); err != nil {
						return summary, fmt.Errorf("federation: save role %s: %w", r.ID, err)
					}
				}
			default:
				merged := mergeRole(existing, r)
				if mergedRoleDiffers(existing, &merged) {
					summary.RolesUpdated++
					if !opts.DryRun {
						if err := target.SaveRole(&merged); err != nil {
							return summary, fmt.Errorf("federation: save role %s: %w", r.ID, err)
						}
					}
				} else {
					summary.RolesSkipped++
				}
			}
		}
	}

	if filter == FilterAll || filter == FilterObjectives || len(requiredObjectiveIDs) > 0 {
		for _, o := range srcObjectives {
			wanted := want == nil || want[o.ID] || requiredObjectiveIDs[o.ID]
			if !wanted {
				continue
			}
			transferredObjectiveIDs[o.ID] = true
			existing, ok := tgtObjectiveByID[o.ID]
			candidate := o
			if opts.NoPerformance {
				clone := *candidate
				clone.Performance = identity.RewardHistory{}
				candidate = &clone
			}
			switch {
			case !ok:
				summary.ObjectivesAdded++
				if !opts.DryRun {
					if err := target.SaveObjective(candidate); err != nil {
						return summary, fmt.Errorf("federation: save objective %s: %w", o.ID, err)
					}
				}
			case opts.Force || opts.NoPerformance:
				merged := *candidate
				if opts.NoPerformance {
					merged.Performance = existing.Performance
				}
				summary.ObjectivesUpdated++
				if !opts.DryRun {
					if err := target.SaveObjective(&merged); err != nil {
						return summary, fmt.Errorf("federation: save objective %s: %w", o.ID, err)
					}
				}
			default:
				merged := mergeObjective(existing, o)
				if mergedObjectiveDiffers(existing, &merged) {
					summary.ObjectivesUpdated++
					if !opts.DryRun {
						if err := target.SaveObjective(&merged); err != nil {
							return summary, fmt.Errorf("federation: save objective %s: %w", o.ID, err)
						}
					}
				} else {
					summary.ObjectivesSkipped++
				}
			}
		}
	}

	if filter == FilterAll || filter == FilterAgents {
		for _, a := range agentsToTransfer {
			transferredAgentIDs[a.ID] = true
			existing, ok := tgtAgentByID[a.ID]
			candidate := a
			if opts.NoPerformance {
				clone := *candidate
				clone.Performance = identity.RewardHistory{}
				candidate = &clone
			}
			switch {
			case !ok:
				summary.AgentsAdded++
				if !opts.DryRun {
					if err := target.SaveAgent(candidate); err != nil {
						return summary, fmt.Errorf("federation: save agent %s: %w", a.ID, err)
					}
				}
			case opts.Force || opts.NoPerformance:
				merged := *candidate
				if opts.NoPerformance {
					merged.Performance = existing.Performance
				}
				summary.AgentsUpdated++
				if !opts.DryRun {
					if err := target.SaveAgent(&merged); err != nil {
						return summary, fmt.Errorf("federation: save agent %s: %w", a.ID, err)
					}
				}
			default:
				merged := mergeAgent(existing, a)
				if mergedAgentDiffers(existing, &merged) {
					summary.AgentsUpdated++
					if !opts.DryRun {
						if err := target.SaveAgent(&merged); err != nil {
							return summary, fmt.Errorf("federation: save agent %s: %w", a.ID, err)
						}
					}
				} else {
					summary.AgentsSkipped++
				}
			}
		}
	}

	if !opts.NoRewards {
		added, skipped, err := transferRewards(source, target, opts, transferredRoleIDs, transferredObjectiveIDs, transferredAgentIDs)
		if err != nil {
			return summary, err
		}
		summary.RewardsAdded = added
		summary.RewardsSkipped = skipped
	}

	return summary, nil
}

func transferRewards(source, target *identity.Store, opts TransferOptions, roleIDs, objectiveIDs, agentIDs map[string]bool) (added, skipped int, err error) {
	srcRewards, err := source.LoadAllRewards()
	if err != nil {
		return 0, 0, fmt.Errorf("federation: load source rewards: %w", err)
	}
	tgtRewards, err := target.LoadAllRewards()
	if err != nil {
		return 0, 0, fmt.Errorf("federation: load target rewards: %w", err)
	}
	seen := make(map[string]bool, len(tgtRewards))
	for _, r := range tgtRewards {
		seen[r.ID] = true
	}

	filterByTransferred := opts.EntityFilter != FilterAll && opts.EntityFilter != ""
	for _, r := range srcRewards {
		if seen[r.ID] {
			skipped++
			continue
		}
		if filterByTransferred {
			switch opts.EntityFilter {
			case FilterRoles:
				if !roleIDs[r.RoleID] {
					skipped++
					continue
				}
			case FilterObjectives:
				if !objectiveIDs[r.ObjectiveID] {
					skipped++
					continue
				}
			case FilterAgents:
				if !agentIDs[r.AgentID] {
					skipped++
					continue
				}
			}
		}
		added++
		seen[r.ID] = true
		if !opts.DryRun {
			if err := target.SaveReward(r); err != nil {
				return added, skipped, fmt.Errorf("federation: save reward %s: %w", r.ID, err)
			}
		}
	}
	return added, skipped, nil
}

// mergeLineage prefers the richer lineage: more parents, then higher
// generation; ties keep the target's (local) lineage.
func mergeLineage(target, source identity.Lineage) identity.Lineage {
	switch {
	case len(source.ParentIDs) > len(target.ParentIDs):
		return source
	case len(target.ParentIDs) > len(source.ParentIDs):
		return target
	case source.Generation > target.Generation:
		return source
	default:
		return target
	}
}

// mergePerformance unions reward entries deduplicated by (task_id,
// timestamp) and recomputes task_count/mean_reward over the union.
func mergePerformance(target, source identity.RewardHistory) identity.RewardHistory {
	seen := make(map[[2]string]bool)
	var merged []identity.RewardRef
	for _, ref := range append(append([]identity.RewardRef{}, target.Rewards...), source.Rewards...) {
		key := [2]string{ref.TaskID, ref.Timestamp}
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, ref)
	}
	var mean *float64
	if len(merged) > 0 {
		var sum float64
		for _, r := range merged {
			sum += r.Value
		}
		m := sum / float64(len(merged))
		mean = &m
	}
	return identity.RewardHistory{
		TaskCount:  uint32(len(merged)),
		MeanReward: mean,
		Rewards:    merged,
	}
}

func mergeRole(target, source *identity.Role) identity.Role {
	merged := *target
	merged.Performance = mergePerformance(target.Performance, source.Performance)
	merged.Lineage = mergeLineage(target.Lineage, source.Lineage)
	return merged
}

func mergeObjective(target, source *identity.Objective) identity.Objective {
	merged := *target
	merged.Performance = mergePerformance(target.Performance, source.Performance)
	merged.Lineage = mergeLineage(target.Lineage, source.Lineage)
	return merged
}

func mergeAgent(target, source *identity.Agent) identity.Agent {
	merged := *target
	merged.Performance = mergePerformance(target.Performance, source.Performance)
	merged.Lineage = mergeLineage(target.Lineage, source.Lineage)
	return merged
}

func mergedRoleDiffers(original, merged *identity.Role) bool {
	return original.Performance.TaskCount != merged.Performance.TaskCount ||
		len(original.Performance.Rewards) != len(merged.Performance.Rewards) ||
		original.Lineage.Generation != merged.Lineage.Generation ||
		len(original.Lineage.ParentIDs) != len(merged.Lineage.ParentIDs)
}

func mergedObjectiveDiffers(original, merged *identity.Objective) bool {
	return original.Performance.TaskCount != merged.Performance.TaskCount ||
		len(original.Performance.Rewards) != len(merged.Performance.Rewards) ||
		original.Lineage.Generation != merged.Lineage.Generation ||
		len(original.Lineage.ParentIDs) != len(merged.Lineage.ParentIDs)
}

func mergedAgentDiffers(original, merged *identity.Agent) bool {
	return original.Performance.TaskCount != merged.Performance.TaskCount ||
		len(original.Performance.Rewards) != len(merged.Performance.Rewards) ||
		original.Lineage.Generation != merged.Lineage.Generation ||
		len(original.Lineage.ParentIDs) != len(merged.Lineage.ParentIDs)
}
