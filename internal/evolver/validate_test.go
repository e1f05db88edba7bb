package evolver

import (
	"context"
	"testing"
)

func TestValidateAllowsCreateWithoutTarget(t *testing.T) {
	v, err := NewValidator(context.Background())
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	ok, err := v.Validate(context.Background(), Proposal{Op: OpCreateRole})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !ok {
		t.Fatal("create_role with no target_id should be allowed")
	}
}

func TestValidateRejectsModifyWithoutTarget(t *testing.T) {
	v, err := NewValidator(context.Background())
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	ok, err := v.Validate(context.Background(), Proposal{Op: OpModifyRole})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok {
		t.Fatal("modify_role with an empty target_id should be rejected")
	}
}

func TestValidateAllowsModifyWithTarget(t *testing.T) {
	v, err := NewValidator(context.Background())
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	ok, err := v.Validate(context.Background(), Proposal{Op: OpModifyRole, TargetID: "abc123"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !ok {
		t.Fatal("modify_role with a target_id should be allowed")
	}
}

func TestValidateRejectsUnknownOp(t *testing.T) {
	v, err := NewValidator(context.Background())
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	ok, err := v.Validate(context.Background(), Proposal{Op: "bogus_op"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok {
		t.Fatal("an unknown op kind should be rejected")
	}
}

func TestValidateRejectsRetireWithoutTarget(t *testing.T) {
	v, err := NewValidator(context.Background())
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	ok, err := v.Validate(context.Background(), Proposal{Op: OpRetireObjective})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok {
		t.Fatal("retire_objective with an empty target_id should be rejected")
	}
}
