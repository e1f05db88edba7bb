package executor

import (
	"testing"

	"github.com/wgraph/engine/internal/graph"
)

func strPtr(s string) *string { return &s }

func TestTemplateVarsApply(t *testing.T) {
	v := TemplateVars{
		TaskID:      "task-123",
		TaskTitle:   "Implement feature",
		TaskContext: "Context from deps",
	}
	got := v.Apply("Working on {{task_id}}: {{task_title}}. Context: {{task_context}}")
	want := "Working on task-123: Implement feature. Context: Context from deps"
	if got != want {
		t.Fatalf("Apply() = %q, want %q", got, want)
	}
}

func TestFromTask(t *testing.T) {
	task := &graph.Task{ID: "my-task", Title: "My Title", Description: strPtr("Test description")}
	v := FromTask(task, "", "", nil)

	if v.TaskID != "my-task" {
		t.Fatalf("TaskID = %q", v.TaskID)
	}
	if v.TaskTitle != "My Title" {
		t.Fatalf("TaskTitle = %q", v.TaskTitle)
	}
	if v.TaskDescription != "Test description" {
		t.Fatalf("TaskDescription = %q", v.TaskDescription)
	}
	if v.TaskContext != "" {
		t.Fatalf("TaskContext = %q, want empty", v.TaskContext)
	}
}

func TestFromTaskNoIdentityWhenNoAgent(t *testing.T) {
	task := &graph.Task{ID: "task-1", Title: "Test Task"}
	v := FromTask(task, "", "", nil)
	if v.TaskIdentity != "" {
		t.Fatalf("TaskIdentity = %q, want empty", v.TaskIdentity)
	}
}

func TestFromTaskNoIdentityWhenNoWGDir(t *testing.T) {
	task := &graph.Task{ID: "task-1", Title: "Test Task", Agent: strPtr("some-agent-hash")}
	v := FromTask(task, "", "", nil)
	if v.TaskIdentity != "" {
		t.Fatalf("TaskIdentity = %q, want empty", v.TaskIdentity)
	}
}

func TestApplyWithEmptyIdentity(t *testing.T) {
	v := TemplateVars{TaskID: "task-1"}
	got := v.Apply("Preamble\n{{task_identity}}\nTask: {{task_id}}")
	want := "Preamble\n\nTask: task-1"
	if got != want {
		t.Fatalf("Apply() = %q, want %q", got, want)
	}
}
