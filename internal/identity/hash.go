package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// canonicalHash returns the lowercase hex SHA-256 of v's canonical JSON
// encoding (Go's encoding/json sorts map keys and preserves struct field
// order, which is stable enough for our fixed-shape hash inputs).
func canonicalHash(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// The inputs are always fixed-shape structs; a marshal failure here
		// would be a programming error, not a runtime condition to recover
		// from gracefully.
		panic("identity: canonical hash marshal: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type roleHashInput struct {
	Skills         []SkillRef `json:"skills"`
	DesiredOutcome string     `json:"desired_outcome"`
	Description    string     `json:"description"`
}

// ContentHashRole computes a role's content-hash ID from its immutable
// fields (spec.md 3.3). Two roles with identical skills/desired_outcome/
// description hash identically, by construction.
func ContentHashRole(skills []SkillRef, desiredOutcome, description string) string {
	return canonicalHash(roleHashInput{Skills: skills, DesiredOutcome: desiredOutcome, Description: description})
}

type objectiveHashInput struct {
	AcceptableTradeoffs   []string `json:"acceptable_tradeoffs"`
	UnacceptableTradeoffs []string `json:"unacceptable_tradeoffs"`
	Description           string   `json:"description"`
}

// ContentHashObjective computes an objective's content-hash ID.
func ContentHashObjective(acceptable, unacceptable []string, description string) string {
	return canonicalHash(objectiveHashInput{
		AcceptableTradeoffs:   acceptable,
		UnacceptableTradeoffs: unacceptable,
		Description:           description,
	})
}

type agentHashInput struct {
	RoleID      string `json:"role_id"`
	ObjectiveID string `json:"objective_id"`
}

// ContentHashAgent computes an agent's content-hash ID from (roleID,
// objectiveID) order-sensitively: swapping the two arguments is not the
// same identity (spec.md 8 round-trip law).
func ContentHashAgent(roleID, objectiveID string) string {
	return canonicalHash(agentHashInput{RoleID: roleID, ObjectiveID: objectiveID})
}
