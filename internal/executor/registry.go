package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/wgraph/engine/internal/graph"
	"github.com/wgraph/engine/internal/identity"
)

// Registry owns the set of registered Executors and the
// <wgDir>/executors/*.toml configs that parameterize them (spec.md 4.6).
type Registry struct {
	executors  map[string]Executor
	configDir  string
	wgDir      string
	skillCache identity.Cache
}

// NewRegistry builds a Registry rooted at wgDir, pre-registering the
// default, claude, and shell executors.
func NewRegistry(wgDir string) *Registry {
	r := &Registry{
		executors: make(map[string]Executor),
		configDir: filepath.Join(wgDir, "executors"),
		wgDir:     wgDir,
	}
	r.Register(DefaultExecutor{})
	r.Register(ClaudeExecutor{WGDir: wgDir})
	r.Register(ShellExecutor{WGDir: wgDir})
	return r
}

// SetSkillCache installs the cache used to memoize resolved role skill
// content across spawns. A nil cache (the default) disables memoization.
func (r *Registry) SetSkillCache(cache identity.Cache) {
	r.skillCache = cache
}

// Register adds or replaces an executor under its own Name().
func (r *Registry) Register(e Executor) {
	r.executors[e.Name()] = e
}

// Get looks up a registered executor by name.
func (r *Registry) Get(name string) (Executor, bool) {
	e, ok := r.executors[name]
	return e, ok
}

// Available lists registered executor names, sorted.
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.executors))
	for n := range r.executors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadConfig reads <configDir>/<name>.toml, falling back to a built-in
// default config for "claude", "shell", and "default" when the file does
// not exist.
func (r *Registry) LoadConfig(name string) (ExecutorConfig, error) {
	path := filepath.Join(r.configDir, name+".toml")
	if _, err := os.Stat(path); err == nil {
		return LoadExecutorConfig(path)
	}
	return defaultConfigFor(name)
}

func defaultConfigFor(name string) (ExecutorConfig, error) {
	switch name {
	case "claude":
		return claudeDefaultConfig(), nil
	case "shell":
		return shellDefaultConfig(), nil
	case "default":
		return ExecutorConfig{Executor: ExecutorSettings{
			Type:    "default",
			Command: "echo",
			Args:    []string{"Task: {{task_id}}"},
			Env:     map[string]string{},
		}}, nil
	default:
		return ExecutorConfig{}, fmt.Errorf("executor: unknown executor %q", name)
	}
}

// Init ensures the executors config directory exists and is seeded with
// the claude and shell default configs, so an operator can edit them in
// place (spec.md 4.6).
func (r *Registry) Init() error {
	if err := os.MkdirAll(r.configDir, 0o755); err != nil {
		return fmt.Errorf("executor: create executors dir: %w", err)
	}
	for _, name := range []string{"claude", "shell"} {
		path := filepath.Join(r.configDir, name+".toml")
		if _, err := os.Stat(path); err == nil {
			continue
		}
		cfg, err := defaultConfigFor(name)
		if err != nil {
			return err
		}
		if err := writeDefaultConfig(path, cfg); err != nil {
			return err
		}
	}
	return nil
}

// Spawn resolves executorName (falling back to "default" if unregistered),
// loads its config, builds TemplateVars from task, and spawns an agent.
func (r *Registry) Spawn(executorName string, task *graph.Task, taskContext string) (*AgentHandle, error) {
	exec, ok := r.Get(executorName)
	if !ok {
		exec, ok = r.Get("default")
		if !ok {
			return nil, fmt.Errorf("executor: no executor available")
		}
	}
	config, err := r.LoadConfig(executorName)
	if err != nil {
		return nil, err
	}
	vars := FromTask(task, taskContext, r.wgDir, r.skillCache)
	return exec.Spawn(task, config, vars)
}
