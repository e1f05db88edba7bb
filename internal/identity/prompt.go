package identity

import "strings"

// RenderIdentityPrompt composes a role/objective/skills bundle into the
// markdown block injected as {{task_identity}} (spec.md 4.6).
func RenderIdentityPrompt(role *Role, objective *Objective, skills []ResolvedSkill) string {
	var b strings.Builder

	b.WriteString("## Agent Identity\n\n")
	b.WriteString("### Role: " + role.Name + "\n")
	b.WriteString(role.Description + "\n\n")

	if len(skills) > 0 {
		b.WriteString("#### Skills\n")
		for _, s := range skills {
			b.WriteString("### " + s.Name + "\n" + s.Content + "\n\n")
		}
	}

	b.WriteString("#### Desired Outcome\n")
	b.WriteString(role.DesiredOutcome + "\n\n")

	b.WriteString("### Operational Parameters\n")

	b.WriteString("#### Acceptable Trade-offs\n")
	for _, t := range objective.AcceptableTradeoffs {
		b.WriteString("- " + t + "\n")
	}
	b.WriteString("\n")

	b.WriteString("#### Non-negotiable Constraints\n")
	for _, c := range objective.UnacceptableTradeoffs {
		b.WriteString("- " + c + "\n")
	}
	b.WriteString("\n---")

	return b.String()
}
