package idp

import (
	"context"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/transaction"
)

func (e *Engine) executeInitialRegistration(ctx context.Context, tx *transaction.Transaction, params map[string]any) (*InteractionResult, error) {
	username, err := requiredString(params, "username")
	if err != nil {
		return nil, err
	}
	secret, err := requiredString(params, "password")
	if err != nil {
		return nil, err
	}

	profile := make(map[string]string)
	for _, key := range []string{"email", "phone_number", "name"} {
		value, err := optionalString(params, key, "")
		if err != nil {
			return nil, err
		}
		if value != "" {
			profile[key] = value
		}
	}

	if e.credentials == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	hash, err := e.passwordHash.Hash(secret)
	if err != nil {
		// Policy rejections (too short, too long) are caller mistakes.
		return nil, ErrInvalidRequest
	}

	userID, err := e.credentials.RegisterUser(ctx, tx.TenantID, username, hash, profile)
	if err != nil {
		e.metricInc(MetricRegistrationFailure)
		e.emitEvent(ctx, eventRegistrationFailure, false, "", tx.TenantID, "", tx.ID, ErrInvalidRequest, func() map[string]string {
			return map[string]string{"reason": err.Error()}
		})
		return nil, ErrInvalidRequest
	}

	outcome := &verifyOutcome{}
	updated, err := e.mutateInteraction(ctx, tx.ID, outcome, func(rec *transaction.Transaction) error {
		state := e.recordAttempt(rec, MethodInitialRegistration, outcome)
		if outcome.attemptsExceeded {
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
		e.metricInc(MetricRegistrationFailure)
		e.emitEvent(ctx, eventRegistrationFailure, false, userID, tx.TenantID, "", tx.ID, err, nil)
		return nil, err
	}

	e.metricInc(MetricRegistrationSuccess)
	e.emitEvent(ctx, eventRegistrationSuccess, true, updated.UserID, tx.TenantID, "", tx.ID, nil, func() map[string]string {
		return map[string]string{"username": username}
	})

	return &InteractionResult{
		Status: InteractionStatusSuccess,
		Body:   map[string]any{"user_id": userID},
	}, nil
}

func (e *Engine) executeDeny(ctx context.Context, tx *transaction.Transaction, params map[string]any) (*InteractionResult, error) {
	_ = params

	outcome := &verifyOutcome{}
	_, err := e.mutateInteraction(ctx, tx.ID, outcome, func(rec *transaction.Transaction) error {
		rec.Status = transaction.StatusFailed
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTransactionDenied)
	e.emitEvent(ctx, eventTransactionDenied, true, tx.UserID, tx.TenantID, "", tx.ID, nil, nil)

	return &InteractionResult{Status: InteractionStatusDenied}, nil
}
