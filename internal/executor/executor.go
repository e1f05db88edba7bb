package executor

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/wgraph/engine/internal/graph"
)

// Executor spawns an agent process for a task under a named configuration
// (spec.md 4.6).
type Executor interface {
	Name() string
	Spawn(task *graph.Task, config ExecutorConfig, vars TemplateVars) (*AgentHandle, error)
}

// DefaultExecutor runs ExecutorSettings.Command/Args/Env verbatim, with no
// type-specific prompt injection. It backs the built-in "default" config
// and any custom executor type not otherwise registered.
type DefaultExecutor struct{}

// Name implements Executor.
func (DefaultExecutor) Name() string { return "default" }

// Spawn implements Executor.
func (DefaultExecutor) Spawn(_ *graph.Task, config ExecutorConfig, vars TemplateVars) (*AgentHandle, error) {
	settings := config.ApplyTemplates(vars)
	return spawnSettings(settings)
}

func spawnSettings(settings ExecutorSettings) (*AgentHandle, error) {
	cmd := exec.Command(settings.Command, settings.Args...)
	if settings.WorkingDir != "" {
		cmd.Dir = settings.WorkingDir
	}
	if len(settings.Env) > 0 {
		cmd.Env = append(cmd.Env, cmd.Environ()...)
		for k, v := range settings.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: stdin pipe for %s: %w", settings.Command, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: stdout pipe for %s: %w", settings.Command, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: stderr pipe for %s: %w", settings.Command, err)
	}
	go drainToDiscard(stderr)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("executor: spawn %s: %w", settings.Command, err)
	}
	return newAgentHandle(cmd, stdin, stdout, nil), nil
}

// drainToDiscard consumes stderr so the child never blocks writing to a
// full pipe; the stderr of a DefaultExecutor child is not kept anywhere.
func drainToDiscard(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}
