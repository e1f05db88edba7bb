package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/wgraph/engine/internal/graph"
)

// defaultClaudePrompt is the prompt template baked into the built-in
// "claude" executor config, matching the wording the rest of the toolchain
// (wg log/artifact/done/submit/fail) expects an agent to follow.
const defaultClaudePrompt = `# Task Assignment

You are an AI agent working on a task in a workgraph project.

{{task_identity}}
## Your Task
- **ID:** {{task_id}}
- **Title:** {{task_title}}
- **Description:** {{task_description}}

## Context from Dependencies
{{task_context}}

## Required Workflow

You MUST use these commands to track your work:

1. **Log progress** as you work (helps recovery if interrupted):
   ` + "```bash" + `
   wg log {{task_id}} "Starting implementation..."
   wg log {{task_id}} "Completed X, now working on Y"
   ` + "```" + `

2. **Record artifacts** if you create/modify files:
   ` + "```bash" + `
   wg artifact {{task_id}} path/to/file
   ` + "```" + `

3. **Complete the task** when done:
   ` + "```bash" + `
   wg done {{task_id}}      # For regular tasks
   wg submit {{task_id}}    # For verified tasks (if wg done fails)
   ` + "```" + `

4. **Mark as failed** if you cannot complete:
   ` + "```bash" + `
   wg fail {{task_id}} --reason "Specific reason why"
   ` + "```" + `

## Important
- Run ` + "`wg log`" + ` commands BEFORE doing work to track progress
- Run ` + "`wg done`" + ` (or ` + "`wg submit`" + `) BEFORE you finish responding
- If ` + "`wg done`" + ` fails saying "requires verification", use ` + "`wg submit`" + ` instead
- If the task description is unclear, do your best interpretation
- Focus only on this specific task

Begin working on the task now.`

// claudeDefaultConfig is the built-in "claude" executor: invokes the claude
// CLI with permission prompts bypassed (spec.md 4.6), since a workgraph
// agent must run unattended.
func claudeDefaultConfig() ExecutorConfig {
	return ExecutorConfig{Executor: ExecutorSettings{
		Type:    "claude",
		Command: "claude",
		Env:     map[string]string{"WG_SKIP_PERMISSIONS": "1"},
		PromptTemplate: &PromptTemplate{
			Template: defaultClaudePrompt,
		},
	}}
}

// ClaudeExecutor wraps the claude CLI under stdbuf for line-buffered output
// (spec.md 4.6): the prompt is written to
// <wg_dir>/agents/<tmp_id>/prompt.txt, stdout/stderr go to output.log in
// the same directory, and a metadata.json records task_id/executor/model/
// started_at.
type ClaudeExecutor struct {
	// WGDir is the workgraph directory agent output is written under. If
	// empty, per-spawn output capture is skipped (used by unit tests that
	// only exercise config/template resolution).
	WGDir string
}

// Name implements Executor.
func (ClaudeExecutor) Name() string { return "claude" }

// Spawn implements Executor.
func (e ClaudeExecutor) Spawn(task *graph.Task, config ExecutorConfig, vars TemplateVars) (*AgentHandle, error) {
	settings := config.ApplyTemplates(vars)

	var prompt string
	if settings.PromptTemplate != nil {
		prompt = settings.PromptTemplate.Template
	}

	model := "claude-sonnet-4-5"
	if settings.Env != nil {
		if m := settings.Env["WG_MODEL"]; m != "" {
			model = m
		}
	}

	args := []string{"-oL", "-eL", settings.Command, "--model", model, "--print"}
	if settings.Env["WG_SKIP_PERMISSIONS"] == "1" {
		args = append(args, "--dangerously-skip-permissions")
	}
	args = append(args, prompt)

	var agentDir string
	if e.WGDir != "" {
		agentDir = filepath.Join(e.WGDir, "agents", "agent-claude-"+uuid.NewString())
		if err := os.MkdirAll(agentDir, 0o755); err != nil {
			return nil, fmt.Errorf("executor: create agent output dir: %w", err)
		}
		_ = os.WriteFile(filepath.Join(agentDir, "prompt.txt"), []byte(prompt), 0o644)
		writeClaudeMetadata(agentDir, task, model)
	}

	cmd := exec.Command("stdbuf", args...)
	if settings.WorkingDir != "" {
		cmd.Dir = settings.WorkingDir
	}
	cmd.Env = append(cmd.Env, cmd.Environ()...)
	for k, v := range settings.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

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
		return nil, fmt.Errorf("executor: spawn claude: %w", err)
	}
	var onExit func()
	if logFile != nil {
		onExit = func() { _ = logFile.Close() }
	}
	return newAgentHandle(cmd, nil, nil, onExit), nil
}

func writeClaudeMetadata(agentDir string, task *graph.Task, model string) {
	meta := map[string]any{
		"executor":   "claude",
		"model":      model,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}
	if task != nil {
		meta["task_id"] = task.ID
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(agentDir, "metadata.json"), b, 0o644)
}
