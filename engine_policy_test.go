package idp

import (
	"context"
	"errors"
	"testing"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/policy"
)

func TestSelectPolicyReturnsMatch(t *testing.T) {
	h := newTestHarness(t, testConfig())

	selected, err := h.engine.SelectPolicy(context.Background(), "tenant-1", "oauth", RequestContext{ClientID: "client-a"})
	if err != nil {
		t.Fatalf("SelectPolicy failed: %v", err)
	}
	if selected.Description != "any single factor" {
		t.Fatalf("unexpected policy selected: %s", selected.Description)
	}
}

func TestSelectPolicyNotConfigured(t *testing.T) {
	h := newTestHarness(t, testConfig())

	_, err := h.engine.SelectPolicy(context.Background(), "tenant-1", "unknown-flow", RequestContext{})
	if !errors.Is(err, ErrPolicyNotConfigured) {
		t.Fatalf("expected ErrPolicyNotConfigured, got %v", err)
	}
}

func TestSelectPolicyNoneMatched(t *testing.T) {
	h := newTestHarness(t, testConfig())

	cfg := testPolicyConfiguration()
	cfg.Policies[0].Conditions = &policy.Conditions{ClientIDs: []string{"only-this-client"}}
	h.provider.set("tenant-1", "oauth", cfg)

	_, err := h.engine.SelectPolicy(context.Background(), "tenant-1", "oauth", RequestContext{ClientID: "other-client"})
	if !errors.Is(err, ErrNoPolicyMatched) {
		t.Fatalf("expected ErrNoPolicyMatched, got %v", err)
	}
}

func TestSelectPolicyCachesConfiguration(t *testing.T) {
	h := newTestHarness(t, testConfig())
	ctx := context.Background()

	if _, err := h.engine.SelectPolicy(ctx, "tenant-1", "oauth", RequestContext{}); err != nil {
		t.Fatalf("first SelectPolicy failed: %v", err)
	}
	if _, err := h.engine.SelectPolicy(ctx, "tenant-1", "oauth", RequestContext{}); err != nil {
		t.Fatalf("second SelectPolicy failed: %v", err)
	}

	if got := h.provider.callCount(); got != 1 {
		t.Fatalf("expected 1 provider call with warm cache, got %d", got)
	}
}

func TestInvalidatePolicyConfigurationForcesReload(t *testing.T) {
	h := newTestHarness(t, testConfig())
	ctx := context.Background()

	if _, err := h.engine.SelectPolicy(ctx, "tenant-1", "oauth", RequestContext{}); err != nil {
		t.Fatalf("SelectPolicy failed: %v", err)
	}

	updated := testPolicyConfiguration()
	updated.Policies[0].Description = "rotated"
	h.provider.set("tenant-1", "oauth", updated)

	h.engine.InvalidatePolicyConfiguration("tenant-1", "oauth")

	selected, err := h.engine.SelectPolicy(ctx, "tenant-1", "oauth", RequestContext{})
	if err != nil {
		t.Fatalf("SelectPolicy after invalidate failed: %v", err)
	}
	if selected.Description != "rotated" {
		t.Fatalf("expected reloaded configuration, got %s", selected.Description)
	}
	if got := h.provider.callCount(); got != 2 {
		t.Fatalf("expected 2 provider calls after invalidate, got %d", got)
	}
}

func TestSelectPolicyRejectsUncompilableConfiguration(t *testing.T) {
	h := newTestHarness(t, testConfig())

	bad := testPolicyConfiguration()
	bad.Policies[0].SuccessConditions.AnyOf = [][]policy.Clause{{{
		Path:      "$.password-authentication.success_count",
		Type:      "integer",
		Operation: "resembles",
		Value:     1,
	}}}
	h.provider.set("tenant-1", "oauth", bad)

	_, err := h.engine.SelectPolicy(context.Background(), "tenant-1", "oauth", RequestContext{})
	if !errors.Is(err, ErrPolicyConfigurationInvalid) {
		t.Fatalf("expected ErrPolicyConfigurationInvalid, got %v", err)
	}
}

func TestSelectPolicyRejectsUnknownMethodName(t *testing.T) {
	h := newTestHarness(t, testConfig())

	bad := testPolicyConfiguration()
	bad.Policies[0].AvailableMethods = append(bad.Policies[0].AvailableMethods, "carrier-pigeon")
	h.provider.set("tenant-1", "oauth", bad)

	_, err := h.engine.SelectPolicy(context.Background(), "tenant-1", "oauth", RequestContext{})
	if !errors.Is(err, ErrPolicyConfigurationInvalid) {
		t.Fatalf("expected ErrPolicyConfigurationInvalid, got %v", err)
	}
}

func TestSelectPolicyPriorityAndDeclarationOrder(t *testing.T) {
	h := newTestHarness(t, testConfig())

	cfg := &policy.Configuration{
		ID:      "cfg-2",
		Flow:    "oauth",
		Enabled: true,
		Policies: []policy.Policy{
			{
				Description:      "low priority",
				Priority:         1,
				AvailableMethods: []string{MethodPassword},
				SuccessConditions: policy.SuccessConditions{
					AnyOf: [][]policy.Clause{successCondition(MethodPassword)},
				},
			},
			{
				Description:      "first high",
				Priority:         5,
				AvailableMethods: []string{MethodPassword},
				SuccessConditions: policy.SuccessConditions{
					AnyOf: [][]policy.Clause{successCondition(MethodPassword)},
				},
			},
			{
				Description:      "second high",
				Priority:         5,
				AvailableMethods: []string{MethodPassword},
				SuccessConditions: policy.SuccessConditions{
					AnyOf: [][]policy.Clause{successCondition(MethodPassword)},
				},
			},
		},
	}
	h.provider.set("tenant-1", "oauth", cfg)

	selected, err := h.engine.SelectPolicy(context.Background(), "tenant-1", "oauth", RequestContext{})
	if err != nil {
		t.Fatalf("SelectPolicy failed: %v", err)
	}
	if selected.Description != "first high" {
		t.Fatalf("expected first-declared highest-priority policy, got %s", selected.Description)
	}
}
