package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/wgraph/engine/internal/graph"
)

// shellDefaultConfig is the built-in "shell" executor config: bash -c over
// whatever command resolveShellCommand picks (spec.md 4.6).
func shellDefaultConfig() ExecutorConfig {
	return ExecutorConfig{Executor: ExecutorSettings{
		Type:    "shell",
		Command: "bash",
		Args:    []string{"-c", "{{task_context}}"},
		Env:     map[string]string{},
	}}
}

// ShellExecutor runs a task's command directly through bash -c with no
// agent prompt, suited to deterministic build/test/lint steps. It writes
// script.sh, metadata.json, and output.log under
// <wgDir>/agents/agent-shell-<pid>/, grounded on the env_vars module and
// write_metadata/get_command helpers of the reference shell backend.
type ShellExecutor struct {
	// WGDir is the workgraph directory agent output is written under. If
	// empty, output capture is skipped (used by tests and the "default"
	// executor path).
	WGDir string
}

// Name implements Executor.
func (ShellExecutor) Name() string { return "shell" }

// Spawn implements Executor.
func (e ShellExecutor) Spawn(task *graph.Task, config ExecutorConfig, vars TemplateVars) (*AgentHandle, error) {
	settings := config.ApplyTemplates(vars)

	command, err := resolveShellCommand(task, settings, vars)
	if err != nil {
		return nil, err
	}

	var agentDir string
	if e.WGDir != "" {
		agentDir = filepath.Join(e.WGDir, "agents", fmt.Sprintf("agent-shell-%d", os.Getpid()))
		if err := os.MkdirAll(agentDir, 0o755); err != nil {
			return nil, fmt.Errorf("executor: create agent output dir: %w", err)
		}
		writeShellMetadata(agentDir, task, command)
		scriptBody := fmt.Sprintf("#!/bin/bash\n# Shell agent script for task: %s\n\n%s\n", task.ID, command)
		_ = os.WriteFile(filepath.Join(agentDir, "script.sh"), []byte(scriptBody), 0o755)
	}

	shell := settings.Command
	if shell == "" {
		shell = "bash"
	}
	cmd := exec.Command(shell, "-c", command)
	cmd.Env = append(cmd.Env, cmd.Environ()...)
	cmd.Env = append(cmd.Env,
		"WG_TASK_ID="+vars.TaskID,
		"WG_TASK_TITLE="+vars.TaskTitle,
		"WG_TASK_DESCRIPTION="+vars.TaskDescription,
		"WG_TASK_CONTEXT="+vars.TaskContext,
	)
	if task.Exec != nil {
		cmd.Env = append(cmd.Env, "WG_TASK_EXEC="+*task.Exec)
	}
	for k, v := range settings.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if settings.WorkingDir != "" {
		cmd.Dir = settings.WorkingDir
		cmd.Env = append(cmd.Env, "WG_WORKDIR="+settings.WorkingDir)
	}

	cmd.Stdin = nil
	var logFile *os.File
	if agentDir != "" {
		f, err := os.Create(filepath.Join(agentDir, "output.log"))
		if err != nil {
			return nil, fmt.Errorf("executor: create output log: %w", err)
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, fmt.Errorf("executor: spawn shell command %q: %w", command, err)
	}
	var onExit func()
	if logFile != nil {
		onExit = func() { _ = logFile.Close() }
	}
	return newAgentHandle(cmd, nil, nil, onExit), nil
}

// resolveShellCommand picks the command to run: the task's exec field
// first, then config args (unwrapping a leading "-c"), then the raw
// template context as a last resort.
func resolveShellCommand(task *graph.Task, settings ExecutorSettings, vars TemplateVars) (string, error) {
	if task.Exec != nil && *task.Exec != "" {
		return *task.Exec, nil
	}
	if len(settings.Args) >= 2 && settings.Args[0] == "-c" {
		return settings.Args[1], nil
	}
	if len(settings.Args) > 0 {
		return strings.Join(settings.Args, " "), nil
	}
	if vars.TaskContext != "" {
		return vars.TaskContext, nil
	}
	return "", fmt.Errorf("executor: no command specified for shell executor; set the task's exec field or config args")
}

func writeShellMetadata(agentDir string, task *graph.Task, command string) {
	meta := map[string]any{
		"task_id":    task.ID,
		"task_title": task.Title,
		"command":    command,
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(agentDir, "metadata.json"), b, 0o644)
}
