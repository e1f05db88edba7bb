package evolver

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON scans text for the first balanced top-level {...} object,
// tolerating markdown code fences and surrounding commentary (spec.md
// 4.11: "tolerates markdown fences and surrounding commentary — it
// extracts the outermost balanced {...} and attempts JSON parse"). String
// contents (including escaped braces/quotes) are skipped so braces inside
// a quoted value never throw off the depth count.
func ExtractJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseProposals extracts and decodes a ProposalSet from the evolver
// subprocess's raw output. It never guesses intent on ambiguous input: a
// missing or unparseable JSON object is an error, not a best-effort partial
// result (spec.md 9, "do not guess intent; flag for the implementer").
func ParseProposals(raw string) (ProposalSet, error) {
	jsonText, ok := ExtractJSON(raw)
	if !ok {
		return ProposalSet{}, fmt.Errorf("evolver: no JSON object found in proposal output")
	}
	var set ProposalSet
	if err := json.Unmarshal([]byte(jsonText), &set); err != nil {
		return ProposalSet{}, fmt.Errorf("evolver: parse proposal JSON: %w", err)
	}
	return set, nil
}
