package transaction

import (
	"time"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/policy"
)

// Status defines a public type used by idp APIs.
//
// Status instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Status string

const (
	// StatusPending is an exported constant or variable used by the authentication engine.
	StatusPending Status = "pending"
	// StatusCompleting is an exported constant or variable used by the authentication engine.
	StatusCompleting Status = "completing"
	// StatusCompleted is an exported constant or variable used by the authentication engine.
	StatusCompleted Status = "completed"
	// StatusFailed is an exported constant or variable used by the authentication engine.
	StatusFailed Status = "failed"
	// StatusExpired is an exported constant or variable used by the authentication engine.
	StatusExpired Status = "expired"
)

// Challenge is the pending one-time-code artifact for a challenge-based
// method. Only the transaction-bound hash of the code is stored.
type Challenge struct {
	CodeHash    string `json:"code_hash"`
	IssuedAt    int64  `json:"issued_at"`
	Destination string `json:"destination,omitempty"`
	UserID      string `json:"user_id,omitempty"`
}

// MethodState tracks per-method progress inside a transaction. The JSON field
// names double as the state-bag leaves that policy success conditions address
// (e.g. $.email-authentication.success_count).
type MethodState struct {
	AttemptCount int        `json:"attempt_count"`
	SuccessCount int        `json:"success_count"`
	Challenge    *Challenge `json:"challenge,omitempty"`
}

// Transaction is the resumable record of one authentication ceremony. It is
// stored as JSON under its own ID and mutated only through [Store.Update].
// SessionUserID is the user behind the op session presented at creation time,
// when one existed; a strict switch policy pins authentication to that user.
type Transaction struct {
	ID              string                  `json:"id"`
	AuthorizationID string                  `json:"authorization_id"`
	TenantID        string                  `json:"tenant_id"`
	Flow            string                  `json:"flow"`
	Policy          policy.Policy           `json:"policy"`
	Request         policy.RequestContext   `json:"request"`
	UserID          string                  `json:"user_id,omitempty"`
	SessionUserID   string                  `json:"session_user_id,omitempty"`
	Methods         map[string]*MethodState `json:"methods,omitempty"`
	Status          Status                  `json:"status"`
	CreatedAt       int64                   `json:"created_at"`
	ExpiresAt       int64                   `json:"expires_at"`
}

// Method returns the state for a method name, creating it on first touch.
func (t *Transaction) Method(name string) *MethodState {
	if t.Methods == nil {
		t.Methods = make(map[string]*MethodState, 2)
	}
	m, ok := t.Methods[name]
	if !ok {
		m = &MethodState{}
		t.Methods[name] = m
	}
	return m
}

// Terminal reports whether the transaction can no longer accept interactions.
func (t *Transaction) Terminal() bool {
	return t.Status != StatusPending
}

// ExpiredAt reports whether the transaction's lifetime has elapsed.
func (t *Transaction) ExpiredAt(now time.Time) bool {
	return now.Unix() > t.ExpiresAt
}

// Lookup implements [policy.StateReader] over the per-method counters, so a
// path like $.sms-authentication.attempt_count resolves against Methods.
func (t *Transaction) Lookup(path []string) (any, bool) {
	if len(path) != 2 {
		return nil, false
	}
	m, ok := t.Methods[path[0]]
	if !ok {
		return nil, false
	}
	switch path[1] {
	case "attempt_count":
		return m.AttemptCount, true
	case "success_count":
		return m.SuccessCount, true
	default:
		return nil, false
	}
}
