// Package config parses a project's config.toml into the five sections the
// original implementation carries (spec.md SPEC_FULL.md §3 supplemented
// feature #1): agent, coordinator, project, help, and agency. HelpConfig's
// field exists purely so the rest of the struct round-trips; rendering
// help text is out of scope per spec.md §1.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// AgentConfig controls a standalone agent iteration loop.
type AgentConfig struct {
	Executor         string `toml:"executor"`
	Model            string `toml:"model"`
	Interval         uint64 `toml:"interval"`
	CommandTemplate  string `toml:"command_template"`
	MaxTasks         *uint32 `toml:"max_tasks,omitempty"`
	HeartbeatTimeout uint64 `toml:"heartbeat_timeout"`
}

// CoordinatorConfig controls the coordinator's tick cadence and default
// executor (spec.md 4.7).
type CoordinatorConfig struct {
	MaxAgents    int     `toml:"max_agents"`
	Interval     uint64  `toml:"interval"`
	PollInterval uint64  `toml:"poll_interval"`
	Executor     string  `toml:"executor"`
	Model        *string `toml:"model,omitempty"`
}

// ProjectConfig is free-form project metadata.
type ProjectConfig struct {
	Name          *string  `toml:"name,omitempty"`
	Description   *string  `toml:"description,omitempty"`
	DefaultSkills []string `toml:"default_skills,omitempty"`
}

// HelpConfig is CLI help ordering, carried only so the file round-trips; no
// code in this module reads it (spec.md §1 excludes the CLI argument
// parser/display layer).
type HelpConfig struct {
	Ordering string `toml:"ordering"`
}

// AgencyConfig controls the identity/reward subsystem's automation knobs
// (spec.md §4.3, §4.11).
type AgencyConfig struct {
	AutoEvaluate         bool    `toml:"auto_evaluate"`
	AutoAssign           bool    `toml:"auto_assign"`
	AssignerAgent        *string `toml:"assigner_agent,omitempty"`
	EvaluatorAgent       *string `toml:"evaluator_agent,omitempty"`
	EvaluatorModel       *string `toml:"evaluator_model,omitempty"`
	EvolverAgent         *string `toml:"evolver_agent,omitempty"`
	RetentionHeuristics  *string `toml:"retention_heuristics,omitempty"`
}

// Config is the full shape of <wg_dir>/config.toml.
type Config struct {
	Agent       AgentConfig       `toml:"agent"`
	Coordinator CoordinatorConfig `toml:"coordinator"`
	Project     ProjectConfig     `toml:"project"`
	Help        HelpConfig        `toml:"help"`
	Agency      AgencyConfig      `toml:"agency"`
}

// Default returns a Config populated with the original implementation's
// defaults.
func Default() Config {
	return Config{
		Agent: AgentConfig{
			Executor:         "claude",
			Model:            "opus-4-5",
			Interval:         10,
			CommandTemplate:  `claude --model {model} --print "{prompt}"`,
			HeartbeatTimeout: 5,
		},
		Coordinator: CoordinatorConfig{
			MaxAgents:    4,
			Interval:     30,
			PollInterval: 60,
			Executor:     "claude",
		},
		Help: HelpConfig{Ordering: "usage"},
	}
}

// Load reads <wgDir>/config.toml, returning Default() if the file does not
// exist.
func Load(wgDir string) (Config, error) {
	path := filepath.Join(wgDir, "config.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to <wgDir>/config.toml.
func Save(wgDir string, cfg Config) error {
	path := filepath.Join(wgDir, "config.toml")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	defer f.Close()
	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return nil
}

// Init writes a default config.toml if one does not already exist,
// reporting whether it created a new file.
func Init(wgDir string) (bool, error) {
	path := filepath.Join(wgDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := Save(wgDir, Default()); err != nil {
		return false, err
	}
	return true, nil
}

// BuildCommand renders the agent command template with {model}/{prompt}/
// {task_id}/{workdir} placeholders.
func (c Config) BuildCommand(prompt, taskID, workdir string) string {
	r := templateReplacer(c.Agent.Model, prompt, taskID, workdir)
	return r.Replace(c.Agent.CommandTemplate)
}
