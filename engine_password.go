package idp

import (
	"context"
	"fmt"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/transaction"
)

func (e *Engine) executePassword(ctx context.Context, tx *transaction.Transaction, params map[string]any) (*InteractionResult, error) {
	username, err := requiredString(params, "username")
	if err != nil {
		return nil, err
	}
	secret, err := requiredString(params, "password")
	if err != nil {
		return nil, err
	}

	if e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	// Credential verification happens before the CAS body; the mutation must
	// stay a pure function of the record it receives.
	userID, verified, err := e.credentials.VerifyPassword(ctx, tx.TenantID, username, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	outcome := &verifyOutcome{}
	updated, err := e.mutateInteraction(ctx, tx.ID, outcome, func(rec *transaction.Transaction) error {
		state := e.recordAttempt(rec, MethodPassword, outcome)
		if outcome.attemptsExceeded {
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
		return nil
	})
	if err != nil {
		e.metricInc(MetricInteractionFailure)
		e.emitEvent(ctx, eventAuthenticationFailure, false, "", tx.TenantID, "", tx.ID, err, func() map[string]string {
			return map[string]string{"method": MethodPassword}
		})
		return nil, err
	}

	e.metricInc(MetricInteractionSuccess)
	e.emitEvent(ctx, eventAuthenticationSuccess, true, updated.UserID, tx.TenantID, "", tx.ID, nil, func() map[string]string {
		return map[string]string{"method": MethodPassword}
	})

	return &InteractionResult{Status: InteractionStatusSuccess}, nil
}
