// Package executor implements the polymorphic spawn-a-subprocess plane
// (spec.md 4.6): TemplateVars, ExecutorConfig, AgentHandle, the
// ClaudeExecutor/ShellExecutor backends, and the registry that owns their
// configs. Grounded on the reference fleet's plugin dispatch shape
// (services/orchestrator/plugins.go: PluginRegistry + per-type Execute) and
// its subprocess-spawn-with-context-cancellation idiom (PythonPlugin,
// ShellPlugin).
package executor

import (
	"path/filepath"
	"strings"

	"github.com/wgraph/engine/internal/graph"
	"github.com/wgraph/engine/internal/identity"
)

// TemplateVars carries the substitutable values available to a prompt or
// command template (spec.md 4.6).
type TemplateVars struct {
	TaskID          string
	TaskTitle       string
	TaskDescription string
	TaskContext     string
	TaskIdentity    string
}

// FromTask builds TemplateVars for t. If t.Agent is set and wgDir is
// non-empty, the agent's role and objective are loaded from the identity
// store rooted at <wgDir>/identity and rendered into TaskIdentity; any
// resolution failure (unknown agent, missing role/objective) falls back to
// an empty identity rather than failing the spawn. cache, when non-nil,
// memoizes resolved SkillRef.File/SkillRef.URL content (identity.Cache,
// typically a *blobcache.Cache) so repeated spawns for the same role don't
// re-read disk or re-fetch a URL every time.
func FromTask(t *graph.Task, taskContext, wgDir string, cache identity.Cache) TemplateVars {
	v := TemplateVars{
		TaskID:      t.ID,
		TaskTitle:   t.Title,
		TaskContext: taskContext,
	}
	if t.Description != nil {
		v.TaskDescription = *t.Description
	}
	v.TaskIdentity = resolveIdentity(t, wgDir, cache)
	return v
}

func resolveIdentity(t *graph.Task, wgDir string, cache identity.Cache) string {
	if t.Agent == nil || *t.Agent == "" || wgDir == "" {
		return ""
	}
	store := identity.Open(filepath.Join(wgDir, "identity"))
	agent, err := store.FindAgentByPrefix(*t.Agent)
	if err != nil {
		return ""
	}
	role, err := store.FindRoleByPrefix(agent.RoleID)
	if err != nil {
		return ""
	}
	objective, err := store.FindObjectiveByPrefix(agent.ObjectiveID)
	if err != nil {
		return ""
	}
	root := filepath.Dir(wgDir)
	skills := identity.ResolveAllSkills(role.Skills, root, cache)
	return identity.RenderIdentityPrompt(role, objective, skills)
}

// Apply does literal substitution of {{name}} placeholders in tpl.
func (v TemplateVars) Apply(tpl string) string {
	r := strings.NewReplacer(
		"{{task_id}}", v.TaskID,
		"{{task_title}}", v.TaskTitle,
		"{{task_description}}", v.TaskDescription,
		"{{task_context}}", v.TaskContext,
		"{{task_identity}}", v.TaskIdentity,
	)
	return r.Replace(tpl)
}
