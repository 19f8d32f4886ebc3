package idp

import (
	"context"
	"fmt"
	"time"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/internal"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/transaction"
)

func (e *Engine) executeWebAuthnChallenge(ctx context.Context, tx *transaction.Transaction, params map[string]any) (*InteractionResult, error) {
	nonce, err := internal.NewChallengeNonce()
	if err != nil {
		return nil, err
	}
	encoded := internal.EncodeHash(internal.HashChallenge(tx.ID, nonce))
	now := time.Now().Unix()

	outcome := &verifyOutcome{}
	_, err = e.mutateInteraction(ctx, tx.ID, outcome, func(rec *transaction.Transaction) error {
		state := e.recordAttempt(rec, MethodWebAuthn, outcome)
		if outcome.attemptsExceeded {
			return nil
		}
		state.Challenge = &transaction.Challenge{
			CodeHash: encoded,
			IssuedAt: now,
		}
		return nil
	})
	if err != nil {
		e.metricInc(MetricInteractionFailure)
		e.emitEvent(ctx, eventAuthenticationFailure, false, "", tx.TenantID, "", tx.ID, err, func() map[string]string {
			return map[string]string{"method": MethodWebAuthn, "phase": "challenge"}
		})
		return nil, err
	}

	e.metricInc(MetricChallengeIssued)
	e.emitEvent(ctx, eventChallengeIssued, true, "", tx.TenantID, "", tx.ID, nil, func() map[string]string {
		return map[string]string{"method": MethodWebAuthn}
	})

	return &InteractionResult{
		Status: InteractionStatusChallengeIssued,
		Body:   map[string]any{"challenge": nonce},
	}, nil
}

func (e *Engine) executeWebAuthnVerify(ctx context.Context, tx *transaction.Transaction, params map[string]any) (*InteractionResult, error) {
	assertion, err := requiredString(params, "assertion")
	if err != nil {
		return nil, err
	}

	if e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	// The authenticator assertion is opaque to the engine; the credential
	// store owns signature and origin checks.
	userID, verified, err := e.credentials.VerifyWebAuthnAssertion(ctx, tx.TenantID, []byte(assertion))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := time.Now().Unix()
	ttl := int64(e.config.Challenge.TTL / time.Second)

	outcome := &verifyOutcome{}
	updated, err := e.mutateInteraction(ctx, tx.ID, outcome, func(rec *transaction.Transaction) error {
		state := e.recordAttempt(rec, MethodWebAuthn, outcome)
		if outcome.attemptsExceeded {
			return nil
		}

		ch := state.Challenge
		if ch == nil {
			outcome.failed = true
			return nil
		}
		if now > ch.IssuedAt+ttl {
			state.Challenge = nil
			outcome.failed = true
			return nil
		}
		if !verified {
			outcome.failed = true
			return nil
		}

		e.bindUser(rec, userID, outcome)
		if outcome.userMismatch {
			return nil
		}

		state.SuccessCount++
		state.Challenge = nil
		return nil
	})
	if err != nil {
		e.metricInc(MetricInteractionFailure)
		e.emitEvent(ctx, eventAuthenticationFailure, false, "", tx.TenantID, "", tx.ID, err, func() map[string]string {
			return map[string]string{"method": MethodWebAuthn, "phase": "verify"}
		})
		return nil, err
	}

	e.metricInc(MetricInteractionSuccess)
	e.emitEvent(ctx, eventAuthenticationSuccess, true, updated.UserID, tx.TenantID, "", tx.ID, nil, func() map[string]string {
		return map[string]string{"method": MethodWebAuthn}
	})

	return &InteractionResult{Status: InteractionStatusSuccess}, nil
}
