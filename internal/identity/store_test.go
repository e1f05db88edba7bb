package identity

import (
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := Open(t.TempDir())
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestStoreRoleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	role := &Role{ID: "abc123", Name: "Builder", Description: "builds things", Lineage: DefaultLineage()}
	if err := s.SaveRole(role); err != nil {
		t.Fatalf("SaveRole: %v", err)
	}
	got, err := s.LoadRole("abc123")
	if err != nil {
		t.Fatalf("LoadRole: %v", err)
	}
	if got.Name != "Builder" {
		t.Fatalf("Name = %q", got.Name)
	}
}

func TestStoreLoadAllRolesSorted(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"ccc", "aaa", "bbb"} {
		if err := s.SaveRole(&Role{ID: id, Name: id}); err != nil {
			t.Fatalf("SaveRole(%s): %v", id, err)
		}
	}
	roles, err := s.LoadAllRoles()
	if err != nil {
		t.Fatalf("LoadAllRoles: %v", err)
	}
	if len(roles) != 3 {
		t.Fatalf("got %d roles, want 3", len(roles))
	}
	for i, want := range []string{"aaa", "bbb", "ccc"} {
		if roles[i].ID != want {
			t.Fatalf("roles[%d].ID = %q, want %q (should be sorted)", i, roles[i].ID, want)
		}
	}
}

func TestFindRoleByPrefixUnique(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveRole(&Role{ID: "abcdef", Name: "one"}); err != nil {
		t.Fatalf("SaveRole: %v", err)
	}
	got, err := s.FindRoleByPrefix("abc")
	if err != nil {
		t.Fatalf("FindRoleByPrefix: %v", err)
	}
	if got.ID != "abcdef" {
		t.Fatalf("ID = %q", got.ID)
	}
}

func TestFindRoleByPrefixNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.FindRoleByPrefix("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFindRoleByPrefixAmbiguous(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveRole(&Role{ID: "abc111"}); err != nil {
		t.Fatalf("SaveRole: %v", err)
	}
	if err := s.SaveRole(&Role{ID: "abc222"}); err != nil {
		t.Fatalf("SaveRole: %v", err)
	}
	_, err := s.FindRoleByPrefix("abc")
	var ambig *AmbiguousError
	if !errors.As(err, &ambig) {
		t.Fatalf("err = %v (%T), want *AmbiguousError", err, err)
	}
	if len(ambig.Candidates) != 2 {
		t.Fatalf("Candidates = %v, want 2 entries", ambig.Candidates)
	}
}

func TestStoreAgentAndObjectiveRoundTrip(t *testing.T) {
	s := newTestStore(t)
	obj := &Objective{ID: "obj1", Name: "Ship It", AcceptableTradeoffs: []string{"latency"}}
	if err := s.SaveObjective(obj); err != nil {
		t.Fatalf("SaveObjective: %v", err)
	}
	gotObj, err := s.LoadObjective("obj1")
	if err != nil || gotObj.Name != "Ship It" {
		t.Fatalf("LoadObjective: %v, %+v", err, gotObj)
	}

	agent := &Agent{ID: "agent1", RoleID: "role1", ObjectiveID: "obj1", Executor: "claude"}
	if err := s.SaveAgent(agent); err != nil {
		t.Fatalf("SaveAgent: %v", err)
	}
	gotAgent, err := s.LoadAgent("agent1")
	if err != nil || gotAgent.RoleID != "role1" {
		t.Fatalf("LoadAgent: %v, %+v", err, gotAgent)
	}
}

func TestRetireRoleRefusesToEmptyTheStore(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveRole(&Role{ID: "only-one"}); err != nil {
		t.Fatalf("SaveRole: %v", err)
	}
	if err := s.RetireRole("only-one"); err == nil {
		t.Fatal("expected an error retiring the last remaining role")
	}
}

func TestRetireRoleSucceedsWhenOthersRemain(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveRole(&Role{ID: "a"}); err != nil {
		t.Fatalf("SaveRole: %v", err)
	}
	if err := s.SaveRole(&Role{ID: "b"}); err != nil {
		t.Fatalf("SaveRole: %v", err)
	}
	if err := s.RetireRole("a"); err != nil {
		t.Fatalf("RetireRole: %v", err)
	}
	roles, err := s.LoadAllRoles()
	if err != nil {
		t.Fatalf("LoadAllRoles: %v", err)
	}
	if len(roles) != 1 || roles[0].ID != "b" {
		t.Fatalf("roles after retire = %+v", roles)
	}
}

func TestStoreSaveAndLoadAllRewards(t *testing.T) {
	s := newTestStore(t)
	r1 := &Reward{TaskID: "t1", RoleID: "role1", ObjectiveID: "obj1", Value: 0.8, Timestamp: "2026-01-01T00:00:00Z"}
	r2 := &Reward{TaskID: "t2", RoleID: "role1", ObjectiveID: "obj1", Value: 0.9, Timestamp: "2026-01-02T00:00:00Z"}
	if err := s.SaveReward(r1); err != nil {
		t.Fatalf("SaveReward r1: %v", err)
	}
	if err := s.SaveReward(r2); err != nil {
		t.Fatalf("SaveReward r2: %v", err)
	}
	all, err := s.LoadAllRewards()
	if err != nil {
		t.Fatalf("LoadAllRewards: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d rewards, want 2", len(all))
	}
}

func TestLoadAllRewardsOnMissingDirReturnsEmpty(t *testing.T) {
	s := Open(t.TempDir()) // no Init(): rewards dir doesn't exist
	rewards, err := s.LoadAllRewards()
	if err != nil {
		t.Fatalf("LoadAllRewards: %v", err)
	}
	if rewards != nil {
		t.Fatalf("expected nil, got %v", rewards)
	}
}
