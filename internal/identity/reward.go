package identity

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// rewardFilename builds "eval-<task>-<ts-with-colons-as-dashes>.json", which
// is unique per (task, time) to second resolution.
func rewardFilename(taskID string, ts time.Time) string {
	stamp := strings.ReplaceAll(ts.UTC().Format(time.RFC3339), ":", "-")
	return fmt.Sprintf("eval-%s-%s.json", taskID, stamp)
}

// RecordReward writes r's JSON blob and transactionally updates up to three
// entities (agent, role, objective). Each update is independently
// fault-tolerant: if a target is absent, that step is skipped without
// aborting the others (spec.md 4.3).
func (s *Store) RecordReward(r *Reward, now time.Time) error {
	path := filepath.Join(s.root, rewardsDir, rewardFilename(r.TaskID, now))
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal reward: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("identity: write reward: %w", err)
	}

	if r.AgentID != "" {
		if agent, err := s.FindAgentByPrefix(r.AgentID); err == nil {
			agent.Performance = updatePerformance(agent.Performance, RewardRef{
				Value: r.Value, TaskID: r.TaskID, Timestamp: r.Timestamp, ContextID: r.RoleID,
			})
			if err := s.SaveAgent(agent); err != nil {
				slog.Warn("identity: save agent after reward failed", "agent", r.AgentID, "error", err)
			}
		} else {
			slog.Warn("identity: reward references unknown agent, skipping", "agent", r.AgentID, "error", err)
		}
	}

	if role, err := s.FindRoleByPrefix(r.RoleID); err == nil {
		role.Performance = updatePerformance(role.Performance, RewardRef{
			Value: r.Value, TaskID: r.TaskID, Timestamp: r.Timestamp, ContextID: r.ObjectiveID,
		})
		if err := s.SaveRole(role); err != nil {
			slog.Warn("identity: save role after reward failed", "role", r.RoleID, "error", err)
		}
	} else {
		slog.Warn("identity: reward references unknown role, skipping", "role", r.RoleID, "error", err)
	}

	if obj, err := s.FindObjectiveByPrefix(r.ObjectiveID); err == nil {
		obj.Performance = updatePerformance(obj.Performance, RewardRef{
			Value: r.Value, TaskID: r.TaskID, Timestamp: r.Timestamp, ContextID: r.RoleID,
		})
		if err := s.SaveObjective(obj); err != nil {
			slog.Warn("identity: save objective after reward failed", "objective", r.ObjectiveID, "error", err)
		}
	} else {
		slog.Warn("identity: reward references unknown objective, skipping", "objective", r.ObjectiveID, "error", err)
	}

	return nil
}

// updatePerformance appends ref to h, bumps task_count with a saturating
// increment, and recomputes mean_reward over finite values only (spec.md
// 3.4 #6, 8).
func updatePerformance(h RewardHistory, ref RewardRef) RewardHistory {
	if h.TaskCount < math.MaxUint32 {
		h.TaskCount++
	}
	h.Rewards = append(h.Rewards, ref)
	h.MeanReward = recomputeMean(h.Rewards)
	return h
}

func recomputeMean(rewards []RewardRef) *float64 {
	var sum float64
	var n int
	for _, r := range rewards {
		if !math.IsNaN(r.Value) && !math.IsInf(r.Value, 0) {
			sum += r.Value
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}
