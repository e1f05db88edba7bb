package identity

import "testing"

func TestContentHashRoleIsDeterministic(t *testing.T) {
	skills := []SkillRef{{Kind: SkillName, Name: "go"}}
	a := ContentHashRole(skills, "ship features", "writes Go services")
	b := ContentHashRole(skills, "ship features", "writes Go services")
	if a != b {
		t.Fatalf("ContentHashRole is not deterministic: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected a 64-char hex sha256, got %d chars", len(a))
	}
}

func TestContentHashRoleDiffersOnAnyField(t *testing.T) {
	base := ContentHashRole(nil, "outcome", "desc")
	if got := ContentHashRole([]SkillRef{{Kind: SkillName, Name: "x"}}, "outcome", "desc"); got == base {
		t.Error("differing skills should produce a different hash")
	}
	if got := ContentHashRole(nil, "other outcome", "desc"); got == base {
		t.Error("differing desired outcome should produce a different hash")
	}
	if got := ContentHashRole(nil, "outcome", "other desc"); got == base {
		t.Error("differing description should produce a different hash")
	}
}

func TestContentHashObjectiveIsDeterministic(t *testing.T) {
	a := ContentHashObjective([]string{"speed"}, []string{"security"}, "desc")
	b := ContentHashObjective([]string{"speed"}, []string{"security"}, "desc")
	if a != b {
		t.Fatalf("ContentHashObjective is not deterministic")
	}
}

func TestContentHashAgentOrderSensitive(t *testing.T) {
	a := ContentHashAgent("role1", "obj1")
	b := ContentHashAgent("obj1", "role1")
	if a == b {
		t.Fatal("ContentHashAgent must not be commutative: swapping role/objective ids changes identity")
	}
	if got := ContentHashAgent("role1", "obj1"); got != a {
		t.Fatal("ContentHashAgent must be deterministic for the same ordered input")
	}
}
