package executor

import (
	"strings"
	"testing"
)

func TestClaudeDefaultConfigHasPromptTemplate(t *testing.T) {
	cfg := claudeDefaultConfig()
	if cfg.Executor.Command != "claude" {
		t.Fatalf("Command = %q", cfg.Executor.Command)
	}
	if cfg.Executor.PromptTemplate == nil {
		t.Fatalf("expected a prompt template")
	}
	if !strings.Contains(cfg.Executor.PromptTemplate.Template, "{{task_id}}") {
		t.Fatalf("prompt template missing {{task_id}} placeholder")
	}
	if !strings.Contains(cfg.Executor.PromptTemplate.Template, "wg done") {
		t.Fatalf("prompt template missing required workflow instructions")
	}
}
