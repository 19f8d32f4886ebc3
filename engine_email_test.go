package idp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/transaction"
)

func TestEmailChallengeAndVerify(t *testing.T) {
	h := newTestHarness(t, testConfig())
	ctx := context.Background()

	h.seedUser(t, "alice", "correct-horse", "alice@example.com", "")
	txID := h.newTransaction(t, "client-a")

	result, err := h.engine.ExecuteInteraction(ctx, txID, InteractionEmailChallenge, map[string]any{
		"email": "alice@example.com",
	})
	if err != nil {
		t.Fatalf("email challenge failed: %v", err)
	}
	if result.Status != InteractionStatusChallengeIssued {
		t.Fatalf("expected challenge issued, got %s", result.Status)
	}
	if h.email.sent() != 1 {
		t.Fatalf("expected 1 delivery, got %d", h.email.sent())
	}

	result, err = h.engine.ExecuteInteraction(ctx, txID, InteractionEmailAuthentication, map[string]any{
		"code": h.email.lastCode(),
	})
	if err != nil {
		t.Fatalf("email verify failed: %v", err)
	}
	if result.Status != InteractionStatusSuccess {
		t.Fatalf("expected success, got %s", result.Status)
	}

	satisfied, err := h.engine.IsSatisfied(ctx, txID)
	if err != nil {
		t.Fatalf("IsSatisfied failed: %v", err)
	}
	if !satisfied {
		t.Fatal("expected satisfied after email verification")
	}
}

func TestEmailChallengeTemplateSelection(t *testing.T) {
	h := newTestHarness(t, testConfig())
	ctx := context.Background()

	h.seedUser(t, "alice", "correct-horse", "alice@example.com", "")
	txID := h.newTransaction(t, "client-a")

	if _, err := h.engine.ExecuteInteraction(ctx, txID, InteractionEmailChallenge, map[string]any{
		"email":    "alice@example.com",
		"template": "signup-welcome",
	}); err != nil {
		t.Fatalf("email challenge failed: %v", err)
	}
	if got := h.email.lastTemplate(); got != "signup-welcome" {
		t.Fatalf("expected template signup-welcome, got %q", got)
	}

	// Omitting the template selects the default.
	if _, err := h.engine.ExecuteInteraction(ctx, txID, InteractionEmailChallenge, map[string]any{
		"email": "alice@example.com",
	}); err != nil {
		t.Fatalf("email challenge failed: %v", err)
	}
	if got := h.email.lastTemplate(); got != DefaultChallengeTemplate {
		t.Fatalf("expected default template, got %q", got)
	}
}

func TestEmailChallengeWrongTypedTemplateFallsBack(t *testing.T) {
	h := newTestHarness(t, testConfig())
	ctx := context.Background()

	h.seedUser(t, "alice", "correct-horse", "alice@example.com", "")
	txID := h.newTransaction(t, "client-a")

	// A non-string template is an optional parameter of the wrong type: the
	// challenge still succeeds with the default template substituted.
	result, err := h.engine.ExecuteInteraction(ctx, txID, InteractionEmailChallenge, map[string]any{
		"email":    "alice@example.com",
		"template": float64(123),
	})
	if err != nil {
		t.Fatalf("email challenge failed: %v", err)
	}
	if result.Status != InteractionStatusChallengeIssued {
		t.Fatalf("expected challenge issued, got %s", result.Status)
	}
	if got := h.email.lastTemplate(); got != DefaultChallengeTemplate {
		t.Fatalf("expected default template, got %q", got)
	}
}

func TestEmailVerifyWrongCode(t *testing.T) {
	h := newTestHarness(t, testConfig())
	ctx := context.Background()

	h.seedUser(t, "alice", "correct-horse", "alice@example.com", "")
	txID := h.newTransaction(t, "client-a")

	if _, err := h.engine.ExecuteInteraction(ctx, txID, InteractionEmailChallenge, map[string]any{
		"email": "alice@example.com",
	}); err != nil {
		t.Fatalf("email challenge failed: %v", err)
	}

	_, err := h.engine.ExecuteInteraction(ctx, txID, InteractionEmailAuthentication, map[string]any{
		"code": "000000",
	})
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestEmailChallengeUnknownAddressDoesNotLeak(t *testing.T) {
	h := newTestHarness(t, testConfig())
	ctx := context.Background()

	txID := h.newTransaction(t, "client-a")

	// Unknown destination behaves exactly like a known one from the caller's
	// point of view, but nothing is delivered.
	result, err := h.engine.ExecuteInteraction(ctx, txID, InteractionEmailChallenge, map[string]any{
		"email": "ghost@example.com",
	})
	if err != nil {
		t.Fatalf("email challenge failed: %v", err)
	}
	if result.Status != InteractionStatusChallengeIssued {
		t.Fatalf("expected challenge issued, got %s", result.Status)
	}
	if h.email.sent() != 0 {
		t.Fatalf("expected no delivery for unknown address, got %d", h.email.sent())
	}

	_, err = h.engine.ExecuteInteraction(ctx, txID, InteractionEmailAuthentication, map[string]any{
		"code": "123456",
	})
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected generic ErrAuthenticationFailed, got %v", err)
	}
}

func TestEmailChallengeDeliveryFailure(t *testing.T) {
	h := newTestHarness(t, testConfig())
	ctx := context.Background()

	h.seedUser(t, "alice", "correct-horse", "alice@example.com", "")
	h.email.fail = true

	txID := h.newTransaction(t, "client-a")

	_, err := h.engine.ExecuteInteraction(ctx, txID, InteractionEmailChallenge, map[string]any{
		"email": "alice@example.com",
	})
	if !errors.Is(err, ErrDeliveryUnavailable) {
		t.Fatalf("expected ErrDeliveryUnavailable, got %v", err)
	}
}

func TestEmailChallengeExpires(t *testing.T) {
	h := newTestHarness(t, testConfig())
	ctx := context.Background()

	h.seedUser(t, "alice", "correct-horse", "alice@example.com", "")
	txID := h.newTransaction(t, "client-a")

	if _, err := h.engine.ExecuteInteraction(ctx, txID, InteractionEmailChallenge, map[string]any{
		"email": "alice@example.com",
	}); err != nil {
		t.Fatalf("email challenge failed: %v", err)
	}

	// Backdate the stored artifact beyond the challenge TTL.
	if _, err := h.engine.transactionStore.Update(ctx, txID, func(rec *transaction.Transaction) error {
		state := rec.Method(MethodEmail)
		if state.Challenge == nil {
			t.Fatal("expected stored challenge")
		}
		state.Challenge.IssuedAt = time.Now().Add(-time.Hour).Unix()
		return nil
	}); err != nil {
		t.Fatalf("backdating challenge failed: %v", err)
	}

	_, err := h.engine.ExecuteInteraction(ctx, txID, InteractionEmailAuthentication, map[string]any{
		"code": h.email.lastCode(),
	})
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed for expired challenge, got %v", err)
	}
}

func TestEmailReissueReplacesChallenge(t *testing.T) {
	h := newTestHarness(t, testConfig())
	ctx := context.Background()

	h.seedUser(t, "alice", "correct-horse", "alice@example.com", "")
	txID := h.newTransaction(t, "client-a")

	if _, err := h.engine.ExecuteInteraction(ctx, txID, InteractionEmailChallenge, map[string]any{
		"email": "alice@example.com",
	}); err != nil {
		t.Fatalf("first challenge failed: %v", err)
	}
	firstCode := h.email.lastCode()

	if _, err := h.engine.ExecuteInteraction(ctx, txID, InteractionEmailChallenge, map[string]any{
		"email": "alice@example.com",
	}); err != nil {
		t.Fatalf("second challenge failed: %v", err)
	}

	if firstCode == h.email.lastCode() {
		t.Fatal("expected a fresh code on reissue")
	}

	// The superseded code no longer verifies.
	if _, err := h.engine.ExecuteInteraction(ctx, txID, InteractionEmailAuthentication, map[string]any{
		"code": firstCode,
	}); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed for stale code, got %v", err)
	}

	if _, err := h.engine.ExecuteInteraction(ctx, txID, InteractionEmailAuthentication, map[string]any{
		"code": h.email.lastCode(),
	}); err != nil {
		t.Fatalf("fresh code verify failed: %v", err)
	}
}

func TestSMSChallengeAndVerify(t *testing.T) {
	h := newTestHarness(t, testConfig())
	ctx := context.Background()

	h.seedUser(t, "alice", "correct-horse", "", "+15550100")
	txID := h.newTransaction(t, "client-a")

	result, err := h.engine.ExecuteInteraction(ctx, txID, InteractionSMSChallenge, map[string]any{
		"phone_number": "+15550100",
	})
	if err != nil {
		t.Fatalf("sms challenge failed: %v", err)
	}
	if result.Status != InteractionStatusChallengeIssued {
		t.Fatalf("expected challenge issued, got %s", result.Status)
	}
	if h.sms.sent() != 1 {
		t.Fatalf("expected 1 sms delivery, got %d", h.sms.sent())
	}
	if got := h.sms.lastTemplate(); got != DefaultChallengeTemplate {
		t.Fatalf("expected default sms template, got %q", got)
	}

	result, err = h.engine.ExecuteInteraction(ctx, txID, InteractionSMSAuthentication, map[string]any{
		"code": h.sms.lastCode(),
	})
	if err != nil {
		t.Fatalf("sms verify failed: %v", err)
	}
	if result.Status != InteractionStatusSuccess {
		t.Fatalf("expected success, got %s", result.Status)
	}
}

func TestOTPCodesAreTransactionBound(t *testing.T) {
	h := newTestHarness(t, testConfig())
	ctx := context.Background()

	h.seedUser(t, "alice", "correct-horse", "alice@example.com", "")

	tx1 := h.newTransaction(t, "client-a")
	if _, err := h.engine.ExecuteInteraction(ctx, tx1, InteractionEmailChallenge, map[string]any{
		"email": "alice@example.com",
	}); err != nil {
		t.Fatalf("challenge on tx1 failed: %v", err)
	}
	codeForTx1 := h.email.lastCode()

	tx2 := h.newTransaction(t, "client-a")
	if _, err := h.engine.ExecuteInteraction(ctx, tx2, InteractionEmailChallenge, map[string]any{
		"email": "alice@example.com",
	}); err != nil {
		t.Fatalf("challenge on tx2 failed: %v", err)
	}

	// tx1's code must not verify against tx2 even if the digits matched by
	// chance; the stored hash is bound to the transaction ID.
	if codeForTx1 != h.email.lastCode() {
		if _, err := h.engine.ExecuteInteraction(ctx, tx2, InteractionEmailAuthentication, map[string]any{
			"code": codeForTx1,
		}); !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("expected ErrAuthenticationFailed for cross-transaction code, got %v", err)
		}
	}
}
