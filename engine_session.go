package idp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/internal"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/session"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/transaction"
)

// CompleteAndGrant describes the completeandgrant operation and its observable behavior.
//
// CompleteAndGrant may return an error when input validation, dependency calls, or security checks fail.
// CompleteAndGrant does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CompleteAndGrant(ctx context.Context, transactionID, presentedCookie string) (*CompletionResult, error) {
	if e == nil || e.transactionStore == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	tx, err := e.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	compiled, err := compileSnapshot(tx.Policy)
	if err != nil {
		return nil, err
	}

	// Claim the transaction before touching sessions or grants: of two
	// concurrent completions, exactly one moves pending -> completing and
	// proceeds; the other observes a closed transaction.
	tx, err = e.transactionStore.Update(ctx, tx.ID, func(rec *transaction.Transaction) error {
		if rec.Status != transaction.StatusPending {
			return ErrTransactionClosed
		}
		if !compiled.Satisfied(rec) || rec.UserID == "" {
			return ErrTransactionNotSatisfied
		}
		rec.Status = transaction.StatusCompleting
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTransactionClosed) || errors.Is(err, ErrTransactionNotSatisfied) {
			return nil, err
		}
		return nil, e.mapTransactionStoreError(err)
	}

	presentedSessionID := e.presentedSessionID(presentedCookie, tx.TenantID)

	sid, err := internal.NewSessionID()
	if err != nil {
		e.releaseCompletion(ctx, tx.ID)
		return nil, err
	}

	now := time.Now()
	next := &session.Session{
		SessionID:  sid.String(),
		UserID:     tx.UserID,
		TenantID:   tx.TenantID,
		CreatedAt:  now.Unix(),
		LastUsedAt: now.Unix(),
		ExpiresAt:  now.Add(e.config.Session.Lifetime).Unix(),
	}

	result, err := e.sessionStore.Establish(ctx, presentedSessionID, next, e.config.Session.Lifetime, e.config.Session.SwitchPolicy)
	if err != nil {
		if errors.Is(err, session.ErrDifferentUser) {
			return nil, e.rejectSwitch(ctx, tx, result)
		}
		e.releaseCompletion(ctx, tx.ID)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.grantStore.Record(ctx, tx.TenantID, tx.UserID, tx.Request.ClientID, tx.Request.Scopes); err != nil {
		e.releaseCompletion(ctx, tx.ID)
		return nil, err
	}
	e.metricInc(MetricGrantRecorded)
	e.emitEvent(ctx, eventAuthorizationGranted, true, tx.UserID, tx.TenantID, result.Session.SessionID, tx.ID, nil, func() map[string]string {
		return map[string]string{"client_id": tx.Request.ClientID}
	})

	if _, err := e.transactionStore.Update(ctx, tx.ID, func(rec *transaction.Transaction) error {
		if rec.Status != transaction.StatusCompleting {
			return ErrTransactionClosed
		}
		rec.Status = transaction.StatusCompleted
		return nil
	}); err != nil {
		if errors.Is(err, ErrTransactionClosed) {
			return nil, ErrTransactionClosed
		}
		return nil, e.mapTransactionStoreError(err)
	}

	e.metricInc(MetricTransactionCompleted)
	e.recordSessionAction(ctx, tx, result)

	cookie, err := e.cookieCodec.Encode(result.Session.SessionID, tx.TenantID)
	if err != nil {
		return nil, err
	}

	return &CompletionResult{
		UserID:          tx.UserID,
		AuthorizationID: tx.AuthorizationID,
		SessionID:       result.Session.SessionID,
		SessionAction:   result.Action,
		Cookie:          cookie,
	}, nil
}

// CheckSilentAuthorization describes the checksilentauthorization operation and its observable behavior.
//
// CheckSilentAuthorization may return an error when input validation, dependency calls, or security checks fail.
// CheckSilentAuthorization does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CheckSilentAuthorization(ctx context.Context, presentedCookie, tenantID string, rc RequestContext) (*SilentAuthorization, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	sessionID := e.presentedSessionID(presentedCookie, tenantID)
	if sessionID == "" {
		e.silentMiss(ctx, tenantID, "", rc, ErrSessionNotFound)
		return nil, ErrSessionNotFound
	}

	sess, err := e.sessionStore.GetReadOnly(ctx, tenantID, sessionID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			e.silentMiss(ctx, tenantID, sessionID, rc, ErrSessionNotFound)
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	covered, err := e.grantStore.Covers(ctx, tenantID, sess.UserID, rc.ClientID, rc.Scopes)
	if err != nil {
		return nil, err
	}
	if !covered {
		e.silentMiss(ctx, tenantID, sessionID, rc, ErrConsentRequired)
		return nil, ErrConsentRequired
	}

	e.metricInc(MetricSilentAuthorizationHit)
	e.emitEvent(ctx, eventSilentAuthorizationHit, true, sess.UserID, tenantID, sessionID, "", nil, func() map[string]string {
		return map[string]string{"client_id": rc.ClientID}
	})

	return &SilentAuthorization{
		Authorized: true,
		UserID:     sess.UserID,
		SessionID:  sessionID,
	}, nil
}

// DeleteSession describes the deletesession operation and its observable behavior.
//
// DeleteSession may return an error when input validation, dependency calls, or security checks fail.
// DeleteSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DeleteSession(ctx context.Context, tenantID, sessionID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if err := e.sessionStore.Delete(ctx, tenantID, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// presentedSessionUser resolves a browser cookie to the user behind its live
// session. Unresolvable cookies and stale or unreadable sessions count as no
// session; the establish script re-checks atomically at completion.
func (e *Engine) presentedSessionUser(ctx context.Context, presentedCookie, tenantID string) string {
	sessionID := e.presentedSessionID(presentedCookie, tenantID)
	if sessionID == "" {
		return ""
	}
	sess, err := e.sessionStore.GetReadOnly(ctx, tenantID, sessionID)
	if err != nil {
		return ""
	}
	return sess.UserID
}

// presentedSessionID resolves a browser cookie to a session ID. A missing,
// tampered, expired, or cross-tenant cookie all behave as "no session".
func (e *Engine) presentedSessionID(presentedCookie, tenantID string) string {
	if presentedCookie == "" || e.cookieCodec == nil {
		return ""
	}
	sid, tid, err := e.cookieCodec.Decode(presentedCookie)
	if err != nil {
		return ""
	}
	if tid != tenantID {
		return ""
	}
	return sid
}

// releaseCompletion is the best-effort rollback of a claimed completion when
// an infrastructure call fails mid-flight, so a retry can still complete.
func (e *Engine) releaseCompletion(ctx context.Context, transactionID string) {
	_, _ = e.transactionStore.Update(ctx, transactionID, func(rec *transaction.Transaction) error {
		if rec.Status == transaction.StatusCompleting {
			rec.Status = transaction.StatusPending
		}
		return nil
	})
}

func (e *Engine) rejectSwitch(ctx context.Context, tx *transaction.Transaction, result *session.Result) error {
	previous := ""
	if result != nil {
		previous = result.PreviousUserID
	}

	if _, err := e.transactionStore.Update(ctx, tx.ID, func(rec *transaction.Transaction) error {
		switch rec.Status {
		case transaction.StatusPending, transaction.StatusCompleting:
			rec.Status = transaction.StatusFailed
		}
		return nil
	}); err != nil && !errors.Is(err, transaction.ErrNotFound) && !errors.Is(err, transaction.ErrExpired) {
		return e.mapTransactionStoreError(err)
	}

	e.metricInc(MetricSessionSwitchRejected)
	e.emitEvent(ctx, eventSessionSwitchRejected, false, tx.UserID, tx.TenantID, "", tx.ID, ErrDifferentUserAuthenticated, func() map[string]string {
		return map[string]string{"previous_user_id": previous}
	})

	return ErrDifferentUserAuthenticated
}

func (e *Engine) recordSessionAction(ctx context.Context, tx *transaction.Transaction, result *session.Result) {
	switch result.Action {
	case session.ActionCreated:
		e.metricInc(MetricSessionCreated)
		e.emitEvent(ctx, eventSessionCreated, true, tx.UserID, tx.TenantID, result.Session.SessionID, tx.ID, nil, nil)
	case session.ActionReused:
		e.metricInc(MetricSessionReused)
		e.emitEvent(ctx, eventSessionReused, true, tx.UserID, tx.TenantID, result.Session.SessionID, tx.ID, nil, nil)
	case session.ActionSwitched:
		e.metricInc(MetricSessionSwitched)
		e.emitEvent(ctx, eventSessionSwitched, true, tx.UserID, tx.TenantID, result.Session.SessionID, tx.ID, nil, func() map[string]string {
			return map[string]string{"previous_user_id": result.PreviousUserID}
		})
	}
}

func (e *Engine) silentMiss(ctx context.Context, tenantID, sessionID string, rc RequestContext, cause error) {
	e.metricInc(MetricSilentAuthorizationMiss)
	e.emitEvent(ctx, eventSilentAuthorizationMiss, false, "", tenantID, sessionID, "", cause, func() map[string]string {
		return map[string]string{"client_id": rc.ClientID}
	})
}
