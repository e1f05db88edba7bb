package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store is a directory of content-addressed entity files, laid out per
// spec.md 4.3:
//
//	roles/<hash>.yaml            objectives/<hash>.yaml
//	agents/<hash>.yaml           rewards/eval-<task>-<ts>.json
type Store struct {
	root string
}

// Open wraps an existing (or not-yet-created) identity store root.
func Open(root string) *Store { return &Store{root: root} }

const (
	rolesDir      = "roles"
	objectivesDir = "objectives"
	agentsDir     = "agents"
	rewardsDir    = "rewards"
)

// Init idempotently creates the four subdirectories.
func (s *Store) Init() error {
	for _, d := range []string{rolesDir, objectivesDir, agentsDir, rewardsDir} {
		if err := os.MkdirAll(filepath.Join(s.root, d), 0o755); err != nil {
			return fmt.Errorf("identity: init %s: %w", d, err)
		}
	}
	return nil
}

// ErrNotFound is returned by prefix lookups with zero matches.
var ErrNotFound = errors.New("identity: not found")

// AmbiguousError is returned by prefix lookups with two or more matches.
type AmbiguousError struct {
	Prefix     string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("identity: prefix %q is ambiguous among %v", e.Prefix, e.Candidates)
}

func (s *Store) path(dir, id, ext string) string {
	return filepath.Join(s.root, dir, id+ext)
}

func saveYAML(path string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("identity: marshal yaml: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

func loadYAML(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, v)
}

// SaveRole writes r to roles/<id>.yaml.
func (s *Store) SaveRole(r *Role) error { return saveYAML(s.path(rolesDir, r.ID, ".yaml"), r) }

// LoadRole reads roles/<id>.yaml.
func (s *Store) LoadRole(id string) (*Role, error) {
	var r Role
	if err := loadYAML(s.path(rolesDir, id, ".yaml"), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadAllRoles reads every role file, sorted by ID.
func (s *Store) LoadAllRoles() ([]*Role, error) {
	ids, err := listIDs(filepath.Join(s.root, rolesDir), ".yaml")
	if err != nil {
		return nil, err
	}
	roles := make([]*Role, 0, len(ids))
	for _, id := range ids {
		r, err := s.LoadRole(id)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// FindRoleByPrefix finds the unique role whose ID starts with prefix.
func (s *Store) FindRoleByPrefix(prefix string) (*Role, error) {
	ids, err := listIDs(filepath.Join(s.root, rolesDir), ".yaml")
	if err != nil {
		return nil, err
	}
	id, err := uniquePrefixMatch(prefix, ids)
	if err != nil {
		return nil, err
	}
	return s.LoadRole(id)
}

// SaveObjective writes o to objectives/<id>.yaml.
func (s *Store) SaveObjective(o *Objective) error {
	return saveYAML(s.path(objectivesDir, o.ID, ".yaml"), o)
}

// LoadObjective reads objectives/<id>.yaml.
func (s *Store) LoadObjective(id string) (*Objective, error) {
	var o Objective
	if err := loadYAML(s.path(objectivesDir, id, ".yaml"), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// LoadAllObjectives reads every objective file, sorted by ID.
func (s *Store) LoadAllObjectives() ([]*Objective, error) {
	ids, err := listIDs(filepath.Join(s.root, objectivesDir), ".yaml")
	if err != nil {
		return nil, err
	}
	objs := make([]*Objective, 0, len(ids))
	for _, id := range ids {
		o, err := s.LoadObjective(id)
		if err != nil {
			return nil, err
		}
		objs = append(objs, o)
	}
	return objs, nil
}

// FindObjectiveByPrefix finds the unique objective whose ID starts with prefix.
func (s *Store) FindObjectiveByPrefix(prefix string) (*Objective, error) {
	ids, err := listIDs(filepath.Join(s.root, objectivesDir), ".yaml")
	if err != nil {
		return nil, err
	}
	id, err := uniquePrefixMatch(prefix, ids)
	if err != nil {
		return nil, err
	}
	return s.LoadObjective(id)
}

// SaveAgent writes a to agents/<id>.yaml.
func (s *Store) SaveAgent(a *Agent) error { return saveYAML(s.path(agentsDir, a.ID, ".yaml"), a) }

// LoadAgent reads agents/<id>.yaml.
func (s *Store) LoadAgent(id string) (*Agent, error) {
	var a Agent
	if err := loadYAML(s.path(agentsDir, id, ".yaml"), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// LoadAllAgents reads every agent file, sorted by ID.
func (s *Store) LoadAllAgents() ([]*Agent, error) {
	ids, err := listIDs(filepath.Join(s.root, agentsDir), ".yaml")
	if err != nil {
		return nil, err
	}
	agents := make([]*Agent, 0, len(ids))
	for _, id := range ids {
		a, err := s.LoadAgent(id)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// FindAgentByPrefix finds the unique agent whose ID starts with prefix.
func (s *Store) FindAgentByPrefix(prefix string) (*Agent, error) {
	ids, err := listIDs(filepath.Join(s.root, agentsDir), ".yaml")
	if err != nil {
		return nil, err
	}
	id, err := uniquePrefixMatch(prefix, ids)
	if err != nil {
		return nil, err
	}
	return s.LoadAgent(id)
}

// LoadAllRewards reads every standalone reward blob under rewards/, sorted
// by filename (which embeds task id and timestamp, so this is chronological
// per task).
func (s *Store) LoadAllRewards() ([]*Reward, error) {
	dir := filepath.Join(s.root, rewardsDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: read %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	rewards := make([]*Reward, 0, len(names))
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("identity: read %s: %w", name, err)
		}
		var r Reward
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("identity: parse %s: %w", name, err)
		}
		rewards = append(rewards, &r)
	}
	return rewards, nil
}

// SaveReward writes r's JSON blob to rewards/eval-<task>-<ts>.json, keyed on
// its own Timestamp so a re-transferred reward lands at the same path it was
// originally recorded at.
func (s *Store) SaveReward(r *Reward) error {
	ts, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	path := filepath.Join(s.root, rewardsDir, rewardFilename(r.TaskID, ts))
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal reward: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// RetireRole renames roles/<id>.yaml to roles/<id>.yaml.retired, refusing if
// it would leave zero remaining roles (spec.md 3.5).
func (s *Store) RetireRole(id string) error {
	return s.retire(rolesDir, id)
}

// RetireObjective is the objective analogue of RetireRole.
func (s *Store) RetireObjective(id string) error {
	return s.retire(objectivesDir, id)
}

func (s *Store) retire(dir, id string) error {
	ids, err := listIDs(filepath.Join(s.root, dir), ".yaml")
	if err != nil {
		return err
	}
	if len(ids) <= 1 {
		return fmt.Errorf("identity: retiring %s would leave zero entities in %s", id, dir)
	}
	src := s.path(dir, id, ".yaml")
	dst := src + ".retired"
	return os.Rename(src, dst)
}

func listIDs(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(ids)
	return ids, nil
}

func uniquePrefixMatch(prefix string, ids []string) (string, error) {
	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Prefix: prefix, Candidates: matches}
	}
}
