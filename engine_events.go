package idp

import (
	"context"
	"errors"
	"time"
)

const (
	eventPolicySelected           = "policy_selected"
	eventPolicySelectionFailed    = "policy_selection_failed"
	eventTransactionCreated       = "transaction_created"
	eventTransactionDenied        = "transaction_denied"
	eventTransactionExpired       = "transaction_expired"
	eventAuthenticationSuccess    = "authentication_success"
	eventAuthenticationFailure    = "authentication_failure"
	eventChallengeIssued          = "challenge_issued"
	eventChallengeDeliveryFailed  = "challenge_delivery_failed"
	eventRegistrationSuccess      = "registration_success"
	eventRegistrationFailure      = "registration_failure"
	eventAuthorizationGranted     = "authorization_granted"
	eventSessionCreated           = "session_created"
	eventSessionReused            = "session_reused"
	eventSessionSwitched          = "session_switched"
	eventSessionSwitchRejected    = "session_switch_rejected"
	eventSilentAuthorizationHit   = "silent_authorization_hit"
	eventSilentAuthorizationMiss  = "silent_authorization_miss"
	eventPasswordResetSuccess     = "password_reset_success"
	eventPasswordResetFailure     = "password_reset_failure"
	eventPolicyConfigInvalidated  = "policy_configuration_invalidated"
	eventPolicyConfigLoadRejected = "policy_configuration_load_rejected"
)

// EventErrorCode defines a public type used by idp APIs.
//
// EventErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EventErrorCode string

const (
	eventErrPolicyNotConfigured   EventErrorCode = "policy_not_configured"
	eventErrNoPolicyMatched       EventErrorCode = "no_policy_matched"
	eventErrPolicyInvalid         EventErrorCode = "policy_configuration_invalid"
	eventErrInvalidRequest        EventErrorCode = "invalid_request"
	eventErrAuthenticationFailed  EventErrorCode = "authentication_failed"
	eventErrUnsupportedType       EventErrorCode = "unsupported_interaction_type"
	eventErrTransactionNotFound   EventErrorCode = "transaction_not_found"
	eventErrTransactionExpired    EventErrorCode = "transaction_expired"
	eventErrTransactionClosed     EventErrorCode = "transaction_closed"
	eventErrTransactionUnratified EventErrorCode = "transaction_not_satisfied"
	eventErrDifferentUser         EventErrorCode = "different_user_authenticated"
	eventErrInsufficientScope     EventErrorCode = "insufficient_scope"
	eventErrSessionNotFound       EventErrorCode = "session_not_found"
	eventErrConsentRequired       EventErrorCode = "consent_required"
	eventErrDeliveryUnavailable   EventErrorCode = "delivery_unavailable"
	eventErrStoreUnavailable      EventErrorCode = "store_unavailable"
	eventErrInternal              EventErrorCode = "internal_error"
)

func (e *Engine) emitEvent(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	tenantID string,
	sessionID string,
	transactionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.events == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := Event{
		Timestamp:     time.Now().UTC(),
		EventType:     eventType,
		UserID:        userID,
		TenantID:      tenantID,
		SessionID:     sessionID,
		TransactionID: transactionID,
		IP:            clientIPFromContext(ctx),
		UserAgent:     userAgentFromContext(ctx),
		Success:       success,
		Metadata:      metadata,
	}
	if code := eventErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.events.Emit(ctx, event)
}

func eventErrorCode(err error) EventErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrPolicyNotConfigured):
		return eventErrPolicyNotConfigured
	case errors.Is(err, ErrNoPolicyMatched):
		return eventErrNoPolicyMatched
	case errors.Is(err, ErrPolicyConfigurationInvalid):
		return eventErrPolicyInvalid
	case errors.Is(err, ErrInvalidRequest):
		return eventErrInvalidRequest
	case errors.Is(err, ErrUnsupportedInteractionType):
		return eventErrUnsupportedType
	case errors.Is(err, ErrAuthenticationFailed):
		return eventErrAuthenticationFailed
	case errors.Is(err, ErrTransactionNotFound):
		return eventErrTransactionNotFound
	case errors.Is(err, ErrTransactionExpired):
		return eventErrTransactionExpired
	case errors.Is(err, ErrTransactionClosed):
		return eventErrTransactionClosed
	case errors.Is(err, ErrTransactionNotSatisfied):
		return eventErrTransactionUnratified
	case errors.Is(err, ErrDifferentUserAuthenticated):
		return eventErrDifferentUser
	case errors.Is(err, ErrInsufficientScope):
		return eventErrInsufficientScope
	case errors.Is(err, ErrSessionNotFound):
		return eventErrSessionNotFound
	case errors.Is(err, ErrConsentRequired):
		return eventErrConsentRequired
	case errors.Is(err, ErrDeliveryUnavailable):
		return eventErrDeliveryUnavailable
	case errors.Is(err, ErrStoreUnavailable):
		return eventErrStoreUnavailable
	default:
		return eventErrInternal
	}
}
