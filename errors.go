package idp

import "errors"

var (
	// ErrPolicyNotConfigured is an exported constant or variable used by the authentication engine.
	ErrPolicyNotConfigured = errors.New("authentication policy not configured")
	// ErrNoPolicyMatched is an exported constant or variable used by the authentication engine.
	ErrNoPolicyMatched = errors.New("no authentication policy matched")
	// ErrPolicyConfigurationInvalid is an exported constant or variable used by the authentication engine.
	ErrPolicyConfigurationInvalid = errors.New("invalid authentication policy configuration")
	// ErrUnsupportedInteractionType is an exported constant or variable used by the authentication engine.
	ErrUnsupportedInteractionType = errors.New("unsupported interaction type")
	// ErrInvalidRequest is an exported constant or variable used by the authentication engine.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrAuthenticationFailed is an exported constant or variable used by the authentication engine.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrTransactionNotFound is an exported constant or variable used by the authentication engine.
	ErrTransactionNotFound = errors.New("authentication transaction not found")
	// ErrTransactionExpired is an exported constant or variable used by the authentication engine.
	ErrTransactionExpired = errors.New("authentication transaction expired")
	// ErrTransactionClosed is an exported constant or variable used by the authentication engine.
	ErrTransactionClosed = errors.New("authentication transaction closed")
	// ErrTransactionNotSatisfied is an exported constant or variable used by the authentication engine.
	ErrTransactionNotSatisfied = errors.New("authentication transaction not satisfied")
	// ErrDifferentUserAuthenticated is an exported constant or variable used by the authentication engine.
	ErrDifferentUserAuthenticated = errors.New("different user already authenticated on this session")
	// ErrInsufficientScope is an exported constant or variable used by the authentication engine.
	ErrInsufficientScope = errors.New("insufficient scope")
	// ErrSessionNotFound is an exported constant or variable used by the authentication engine.
	ErrSessionNotFound = errors.New("op-session not found")
	// ErrConsentRequired is an exported constant or variable used by the authentication engine.
	ErrConsentRequired = errors.New("consent required")
	// ErrDeliveryUnavailable is an exported constant or variable used by the authentication engine.
	ErrDeliveryUnavailable = errors.New("challenge delivery unavailable")
	// ErrStoreUnavailable is an exported constant or variable used by the authentication engine.
	ErrStoreUnavailable = errors.New("state store unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// InsufficientScopeError carries the scope a caller was missing. It matches
// [ErrInsufficientScope] under [errors.Is] so callers can branch on the
// sentinel and still recover the scope hint with [errors.As].
type InsufficientScopeError struct {
	Scope string
}

func (e *InsufficientScopeError) Error() string {
	return "insufficient scope: requires " + e.Scope
}

func (e *InsufficientScopeError) Is(target error) bool {
	return target == ErrInsufficientScope
}
