package evolver

import "testing"

func TestExtractJSONPlain(t *testing.T) {
	got, ok := ExtractJSON(`{"proposals":[]}`)
	if !ok || got != `{"proposals":[]}` {
		t.Fatalf("got %q, %v", got, ok)
	}
}

func TestExtractJSONWithMarkdownFencesAndCommentary(t *testing.T) {
	raw := "Here are my proposals:\n```json\n" + `{"proposals":[{"op":"create_role"}]}` + "\n```\nLet me know what you think."
	got, ok := ExtractJSON(raw)
	if !ok {
		t.Fatal("expected a JSON object to be found")
	}
	if got != `{"proposals":[{"op":"create_role"}]}` {
		t.Fatalf("got %q", got)
	}
}

func TestExtractJSONIgnoresBracesInsideStrings(t *testing.T) {
	raw := `{"reason": "use {curly} braces in prose", "op": "create_role"}`
	got, ok := ExtractJSON(raw)
	if !ok || got != raw {
		t.Fatalf("got %q, %v, want the whole object unchanged", got, ok)
	}
}

func TestExtractJSONHandlesEscapedQuotes(t *testing.T) {
	raw := `{"reason": "she said \"ship it\"", "op": "create_role"}`
	got, ok := ExtractJSON(raw)
	if !ok || got != raw {
		t.Fatalf("got %q, %v", got, ok)
	}
}

func TestExtractJSONNoObjectFound(t *testing.T) {
	_, ok := ExtractJSON("no braces here at all")
	if ok {
		t.Fatal("expected ok=false when there is no '{' in the text")
	}
}

func TestExtractJSONUnbalancedReturnsFalse(t *testing.T) {
	_, ok := ExtractJSON(`{"proposals": [`)
	if ok {
		t.Fatal("expected ok=false for an unbalanced object")
	}
}

func TestParseProposalsHappyPath(t *testing.T) {
	raw := "```json\n" + `{"proposals":[{"op":"retire_role","target_id":"abc"}]}` + "\n```"
	set, err := ParseProposals(raw)
	if err != nil {
		t.Fatalf("ParseProposals: %v", err)
	}
	if len(set.Proposals) != 1 || set.Proposals[0].Op != OpRetireRole {
		t.Fatalf("got %+v", set)
	}
}

func TestParseProposalsNoJSONIsAnError(t *testing.T) {
	_, err := ParseProposals("I couldn't think of anything to propose.")
	if err == nil {
		t.Fatal("expected an error when no JSON object is present")
	}
}

func TestParseProposalsMalformedJSONIsAnError(t *testing.T) {
	_, err := ParseProposals(`{"proposals": [}`)
	if err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
