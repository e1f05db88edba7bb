package identity

import (
	"math"
	"testing"
	"time"
)

func TestRecordRewardUpdatesAllThreeEntities(t *testing.T) {
	s := newTestStore(t)
	role := &Role{ID: "role1", Name: "Builder"}
	obj := &Objective{ID: "obj1", Name: "Ship"}
	agent := &Agent{ID: "agent1", RoleID: "role1", ObjectiveID: "obj1", Executor: "claude"}
	if err := s.SaveRole(role); err != nil {
		t.Fatalf("SaveRole: %v", err)
	}
	if err := s.SaveObjective(obj); err != nil {
		t.Fatalf("SaveObjective: %v", err)
	}
	if err := s.SaveAgent(agent); err != nil {
		t.Fatalf("SaveAgent: %v", err)
	}

	r := &Reward{TaskID: "t1", AgentID: "agent1", RoleID: "role1", ObjectiveID: "obj1", Value: 0.75}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := s.RecordReward(r, now); err != nil {
		t.Fatalf("RecordReward: %v", err)
	}

	gotAgent, err := s.LoadAgent("agent1")
	if err != nil {
		t.Fatalf("LoadAgent: %v", err)
	}
	if gotAgent.Performance.TaskCount != 1 || gotAgent.Performance.MeanReward == nil || *gotAgent.Performance.MeanReward != 0.75 {
		t.Fatalf("agent performance = %+v", gotAgent.Performance)
	}
	if len(gotAgent.Performance.Rewards) != 1 || gotAgent.Performance.Rewards[0].ContextID != "role1" {
		t.Fatalf("agent RewardRef.ContextID = %q, want %q (spec.md 4.3 step 2: agent pushes ContextID=role_id)", gotAgent.Performance.Rewards[0].ContextID, "role1")
	}

	gotRole, err := s.LoadRole("role1")
	if err != nil {
		t.Fatalf("LoadRole: %v", err)
	}
	if gotRole.Performance.TaskCount != 1 {
		t.Fatalf("role performance = %+v", gotRole.Performance)
	}
	if len(gotRole.Performance.Rewards) != 1 || gotRole.Performance.Rewards[0].ContextID != "obj1" {
		t.Fatalf("role RewardRef.ContextID = %q, want %q (spec.md 4.3 step 3: role pushes ContextID=objective_id)", gotRole.Performance.Rewards[0].ContextID, "obj1")
	}

	gotObj, err := s.LoadObjective("obj1")
	if err != nil {
		t.Fatalf("LoadObjective: %v", err)
	}
	if gotObj.Performance.TaskCount != 1 {
		t.Fatalf("objective performance = %+v", gotObj.Performance)
	}
	if len(gotObj.Performance.Rewards) != 1 || gotObj.Performance.Rewards[0].ContextID != "role1" {
		t.Fatalf("objective RewardRef.ContextID = %q, want %q (spec.md 4.3 step 4: objective pushes ContextID=role_id)", gotObj.Performance.Rewards[0].ContextID, "role1")
	}

	rewards, err := s.LoadAllRewards()
	if err != nil {
		t.Fatalf("LoadAllRewards: %v", err)
	}
	if len(rewards) != 1 || rewards[0].TaskID != "t1" {
		t.Fatalf("rewards = %+v", rewards)
	}
}

func TestRecordRewardSkipsUnknownReferences(t *testing.T) {
	s := newTestStore(t)
	// No role/objective/agent files exist; RecordReward must still succeed
	// and just log warnings for each missing target (spec.md 4.3).
	r := &Reward{TaskID: "t1", AgentID: "ghost-agent", RoleID: "ghost-role", ObjectiveID: "ghost-obj", Value: 1.0}
	if err := s.RecordReward(r, time.Now()); err != nil {
		t.Fatalf("RecordReward should tolerate missing references: %v", err)
	}
	rewards, err := s.LoadAllRewards()
	if err != nil {
		t.Fatalf("LoadAllRewards: %v", err)
	}
	if len(rewards) != 1 {
		t.Fatalf("the standalone reward blob should still be written, got %d", len(rewards))
	}
}

func TestUpdatePerformanceRecomputesMeanIgnoringNonFinite(t *testing.T) {
	h := RewardHistory{}
	h = updatePerformance(h, RewardRef{Value: 1.0})
	h = updatePerformance(h, RewardRef{Value: 3.0})
	if h.TaskCount != 2 {
		t.Fatalf("TaskCount = %d, want 2", h.TaskCount)
	}
	if h.MeanReward == nil || *h.MeanReward != 2.0 {
		t.Fatalf("MeanReward = %v, want 2.0", h.MeanReward)
	}
	h = updatePerformance(h, RewardRef{Value: math.NaN()})
	if h.MeanReward == nil || *h.MeanReward != 2.0 {
		t.Fatalf("MeanReward after a NaN reward = %v, want 2.0 (non-finite values excluded)", h.MeanReward)
	}
}

func TestRewardUnmarshalJSONLegacyScoreAlias(t *testing.T) {
	r, err := unmarshalReward(`{"task_id":"t1","role_id":"r1","objective_id":"o1","score":0.42}`)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.Value != 0.42 {
		t.Fatalf("Value = %v, want 0.42 (from legacy score alias)", r.Value)
	}
	if r.Source != "llm" {
		t.Fatalf("Source = %q, want default llm", r.Source)
	}
}

func unmarshalReward(js string) (*Reward, error) {
	var r Reward
	err := r.UnmarshalJSON([]byte(js))
	return &r, err
}
