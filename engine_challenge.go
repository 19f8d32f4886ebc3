package idp

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/internal"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/transaction"
)

// issueOTPChallenge generates a one-time code, stores its transaction-bound
// hash under CAS, and delivers it afterwards. An unknown destination still
// stores an unbound artifact and reports challenge_issued, so the response
// never reveals whether the destination exists; nothing is delivered.
func (e *Engine) issueOTPChallenge(
	ctx context.Context,
	tx *transaction.Transaction,
	method string,
	destination string,
	userID string,
	send func(ctx context.Context, code string) error,
) (*InteractionResult, error) {
	code, err := internal.NewOTP(e.config.Challenge.OTPDigits)
	if err != nil {
		return nil, err
	}
	encoded := internal.EncodeHash(internal.HashChallenge(tx.ID, code))
	now := time.Now().Unix()

	outcome := &verifyOutcome{}
	_, err = e.mutateInteraction(ctx, tx.ID, outcome, func(rec *transaction.Transaction) error {
		state := e.recordAttempt(rec, method, outcome)
		if outcome.attemptsExceeded {
			return nil
		}
		state.Challenge = &transaction.Challenge{
			CodeHash:    encoded,
			IssuedAt:    now,
			Destination: destination,
			UserID:      userID,
		}
		return nil
	})
	if err != nil {
		e.metricInc(MetricInteractionFailure)
		e.emitEvent(ctx, eventAuthenticationFailure, false, "", tx.TenantID, "", tx.ID, err, func() map[string]string {
			return map[string]string{"method": method, "phase": "challenge"}
		})
		return nil, err
	}

	if userID != "" && send != nil {
		if sendErr := send(ctx, code); sendErr != nil {
			e.metricInc(MetricChallengeDeliveryFailed)
			e.emitEvent(ctx, eventChallengeDeliveryFailed, false, userID, tx.TenantID, "", tx.ID, ErrDeliveryUnavailable, func() map[string]string {
				return map[string]string{"method": method}
			})
			return nil, ErrDeliveryUnavailable
		}
	}

	e.metricInc(MetricChallengeIssued)
	e.emitEvent(ctx, eventChallengeIssued, true, userID, tx.TenantID, "", tx.ID, nil, func() map[string]string {
		return map[string]string{"method": method}
	})

	return &InteractionResult{Status: InteractionStatusChallengeIssued}, nil
}

// verifyOTPChallenge checks a submitted code against the stored artifact with
// a constant-time compare. A consumed, absent, expired, or unbound challenge
// all collapse into the same generic failure.
func (e *Engine) verifyOTPChallenge(
	ctx context.Context,
	tx *transaction.Transaction,
	method string,
	code string,
) (*InteractionResult, error) {
	encoded := internal.EncodeHash(internal.HashChallenge(tx.ID, code))
	now := time.Now().Unix()
	ttl := int64(e.config.Challenge.TTL / time.Second)

	outcome := &verifyOutcome{}
	updated, err := e.mutateInteraction(ctx, tx.ID, outcome, func(rec *transaction.Transaction) error {
		state := e.recordAttempt(rec, method, outcome)
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
		if subtle.ConstantTimeCompare([]byte(encoded), []byte(ch.CodeHash)) != 1 {
			outcome.failed = true
			return nil
		}
		if ch.UserID == "" {
			// Correct code against an unbound artifact: the destination never
			// belonged to anyone, fail exactly like a wrong code.
			state.Challenge = nil
			outcome.failed = true
			return nil
		}

		e.bindUser(rec, ch.UserID, outcome)
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
			return map[string]string{"method": method, "phase": "verify"}
		})
		return nil, err
	}

	e.metricInc(MetricInteractionSuccess)
	e.emitEvent(ctx, eventAuthenticationSuccess, true, updated.UserID, tx.TenantID, "", tx.ID, nil, func() map[string]string {
		return map[string]string{"method": method}
	})

	return &InteractionResult{Status: InteractionStatusSuccess}, nil
}
