package idp

import (
	"context"
	"errors"
	"time"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/session"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/transaction"
)

// Interaction type names. Challenge-capable methods expose a
// "<method>-challenge" interaction plus a bare verification interaction;
// password, registration, and deny are single-step.
const (
	InteractionPasswordAuthentication = "password-authentication"
	InteractionEmailChallenge         = "email-authentication-challenge"
	InteractionEmailAuthentication    = "email-authentication"
	InteractionSMSChallenge           = "sms-authentication-challenge"
	InteractionSMSAuthentication      = "sms-authentication"
	InteractionWebAuthnChallenge      = "webauthn-authentication-challenge"
	InteractionWebAuthnAuthentication = "webauthn-authentication"
	InteractionInitialRegistration    = "initial-registration"
	InteractionDeny                   = "deny"
)

// Method family names as they appear in a policy's available_methods list.
const (
	MethodPassword            = "password-authentication"
	MethodEmail               = "email-authentication"
	MethodSMS                 = "sms-authentication"
	MethodWebAuthn            = "webauthn-authentication"
	MethodInitialRegistration = "initial-registration"
)

type interactionHandler func(e *Engine, ctx context.Context, tx *transaction.Transaction, params map[string]any) (*InteractionResult, error)

type interactionEntry struct {
	method  string
	handler interactionHandler
}

// interactionRegistry is the closed set of interaction type names. Names not
// in this table never reach a handler.
var interactionRegistry = map[string]interactionEntry{
	InteractionPasswordAuthentication: {method: MethodPassword, handler: (*Engine).executePassword},
	InteractionEmailChallenge:         {method: MethodEmail, handler: (*Engine).executeEmailChallenge},
	InteractionEmailAuthentication:    {method: MethodEmail, handler: (*Engine).executeEmailVerify},
	InteractionSMSChallenge:           {method: MethodSMS, handler: (*Engine).executeSMSChallenge},
	InteractionSMSAuthentication:      {method: MethodSMS, handler: (*Engine).executeSMSVerify},
	InteractionWebAuthnChallenge:      {method: MethodWebAuthn, handler: (*Engine).executeWebAuthnChallenge},
	InteractionWebAuthnAuthentication: {method: MethodWebAuthn, handler: (*Engine).executeWebAuthnVerify},
	InteractionInitialRegistration:    {method: MethodInitialRegistration, handler: (*Engine).executeInitialRegistration},
	InteractionDeny:                   {method: "", handler: (*Engine).executeDeny},
}

func knownMethod(method string) bool {
	switch method {
	case MethodPassword, MethodEmail, MethodSMS, MethodWebAuthn, MethodInitialRegistration:
		return true
	default:
		return false
	}
}

func policyAllows(availableMethods []string, method string) bool {
	// deny carries no method and is always allowed.
	if method == "" {
		return true
	}
	for _, m := range availableMethods {
		if m == method {
			return true
		}
	}
	return false
}

// ExecuteInteraction describes the executeinteraction operation and its observable behavior.
//
// ExecuteInteraction may return an error when input validation, dependency calls, or security checks fail.
// ExecuteInteraction does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ExecuteInteraction(ctx context.Context, transactionID, interactionType string, params map[string]any) (*InteractionResult, error) {
	if e == nil || e.transactionStore == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metricObserve(MetricInteractionLatency, time.Since(start))
	}()

	entry, ok := interactionRegistry[interactionType]
	if !ok {
		e.metricInc(MetricInteractionRejected)
		return nil, ErrUnsupportedInteractionType
	}

	tx, err := e.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if tx.Terminal() {
		return nil, ErrTransactionClosed
	}

	if !policyAllows(tx.Policy.AvailableMethods, entry.method) {
		e.metricInc(MetricInteractionRejected)
		e.emitEvent(ctx, eventAuthenticationFailure, false, tx.UserID, tx.TenantID, "", tx.ID, ErrUnsupportedInteractionType, func() map[string]string {
			return map[string]string{"interaction": interactionType}
		})
		return nil, ErrUnsupportedInteractionType
	}

	result, err := entry.handler(e, ctx, tx, params)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// verifyOutcome is the closure-flag channel between a CAS mutation and the
// caller: attempt bookkeeping must commit even when verification fails, so
// the mutation records the failure here and returns nil to the store.
type verifyOutcome struct {
	failed           bool
	attemptsExceeded bool
	userMismatch     bool
}

// recordAttempt stamps an attempt on a method and enforces the per-method
// attempt budget. Exceeding the budget closes the transaction inside the
// same CAS write.
func (e *Engine) recordAttempt(tx *transaction.Transaction, method string, outcome *verifyOutcome) *transaction.MethodState {
	state := tx.Method(method)
	state.AttemptCount++
	if state.AttemptCount > e.config.Transaction.MaxAttemptsPerMethod {
		tx.Status = transaction.StatusFailed
		outcome.failed = true
		outcome.attemptsExceeded = true
	}
	return state
}

// bindUser sets the transaction's user on first successful verification and
// rejects a second method succeeding as a different user. Under a strict
// switch policy the presented session's user is enforced here, at the
// verifying interaction, not deferred to completion.
func (e *Engine) bindUser(tx *transaction.Transaction, userID string, outcome *verifyOutcome) {
	if e.config.Session.SwitchPolicy == session.SwitchStrict &&
		tx.SessionUserID != "" && tx.SessionUserID != userID {
		outcome.failed = true
		outcome.userMismatch = true
		return
	}
	if tx.UserID == "" {
		tx.UserID = userID
		return
	}
	if tx.UserID != userID {
		outcome.failed = true
		outcome.userMismatch = true
	}
}

// mutateInteraction runs fn against the transaction under CAS and maps the
// recorded outcome to the caller-facing error. fn must be a pure function of
// the record it receives.
func (e *Engine) mutateInteraction(
	ctx context.Context,
	transactionID string,
	outcome *verifyOutcome,
	fn func(*transaction.Transaction) error,
) (*transaction.Transaction, error) {
	updated, err := e.transactionStore.Update(ctx, transactionID, func(tx *transaction.Transaction) error {
		if tx.Terminal() {
			return ErrTransactionClosed
		}
		return fn(tx)
	})
	if err != nil {
		if errors.Is(err, ErrTransactionClosed) {
			return nil, ErrTransactionClosed
		}
		return nil, e.mapTransactionStoreError(err)
	}

	switch {
	case outcome.userMismatch:
		return updated, ErrDifferentUserAuthenticated
	case outcome.failed:
		return updated, ErrAuthenticationFailed
	default:
		return updated, nil
	}
}
