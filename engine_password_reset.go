package idp

import (
	"context"
	"fmt"
)

// ScopePasswordReset is an exported constant or variable used by the authentication engine.
const ScopePasswordReset = "password:reset"

// ResetPassword describes the resetpassword operation and its observable behavior.
//
// ResetPassword may return an error when input validation, dependency calls, or security checks fail.
// ResetPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ResetPassword(ctx context.Context, tenantID, userID, clientID, newPassword string) error {
	if e == nil || e.credentials == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	covered, err := e.grantStore.Covers(ctx, tenantID, userID, clientID, []string{ScopePasswordReset})
	if err != nil {
		return err
	}
	if !covered {
		scopeErr := &InsufficientScopeError{Scope: ScopePasswordReset}
		e.metricInc(MetricPasswordResetFailure)
		e.emitEvent(ctx, eventPasswordResetFailure, false, userID, tenantID, "", "", scopeErr, func() map[string]string {
			return map[string]string{"client_id": clientID}
		})
		return scopeErr
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitEvent(ctx, eventPasswordResetFailure, false, userID, tenantID, "", "", ErrInvalidRequest, nil)
		return ErrInvalidRequest
	}

	if err := e.credentials.UpdatePassword(ctx, tenantID, userID, hash); err != nil {
		e.metricInc(MetricPasswordResetFailure)
		wrapped := fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		e.emitEvent(ctx, eventPasswordResetFailure, false, userID, tenantID, "", "", wrapped, nil)
		return wrapped
	}

	// A credential change invalidates every live session for the user.
	if err := e.sessionStore.DeleteAllForUser(ctx, tenantID, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitEvent(ctx, eventPasswordResetSuccess, true, userID, tenantID, "", "", nil, func() map[string]string {
		return map[string]string{"client_id": clientID}
	})

	return nil
}
