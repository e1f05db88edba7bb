package executor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// PromptTemplate wraps the template string injected as an agent's initial
// prompt, when the executor type uses one (spec.md 4.6).
type PromptTemplate struct {
	Template string `toml:"template"`
}

// ExecutorSettings is the body of an executor config file.
type ExecutorSettings struct {
	Type           string            `toml:"type"`
	Command        string            `toml:"command"`
	Args           []string          `toml:"args"`
	Env            map[string]string `toml:"env"`
	PromptTemplate *PromptTemplate   `toml:"prompt_template"`
	WorkingDir     string            `toml:"working_dir"`
	TimeoutSeconds *uint64           `toml:"timeout"`
}

// ExecutorConfig is the on-disk shape of <wg_dir>/executors/<name>.toml.
type ExecutorConfig struct {
	Executor ExecutorSettings `toml:"executor"`
}

// LoadExecutorConfig parses an executor config file.
func LoadExecutorConfig(path string) (ExecutorConfig, error) {
	var cfg ExecutorConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return ExecutorConfig{}, fmt.Errorf("executor: load config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyTemplates substitutes vars into every templatable field and returns
// the resolved settings, leaving c untouched.
func (c ExecutorConfig) ApplyTemplates(vars TemplateVars) ExecutorSettings {
	s := c.Executor

	s.Command = vars.Apply(s.Command)

	if len(s.Args) > 0 {
		args := make([]string, len(s.Args))
		for i, a := range s.Args {
			args[i] = vars.Apply(a)
		}
		s.Args = args
	}

	if len(s.Env) > 0 {
		env := make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			env[k] = vars.Apply(v)
		}
		s.Env = env
	}

	if s.PromptTemplate != nil {
		pt := *s.PromptTemplate
		pt.Template = vars.Apply(pt.Template)
		s.PromptTemplate = &pt
	}

	if s.WorkingDir != "" {
		s.WorkingDir = vars.Apply(s.WorkingDir)
	}

	return s
}

// writeDefaultConfig serializes cfg as TOML to path, creating parent
// directories as needed.
func writeDefaultConfig(path string, cfg ExecutorConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("executor: create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("executor: write config %s: %w", path, err)
	}
	defer f.Close()
	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("executor: encode config %s: %w", path, err)
	}
	return nil
}
