package idp

import (
	"context"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/internal/secevent"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/policy"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/session"
)

// RequestContext defines a public type used by idp APIs.
//
// RequestContext instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RequestContext = policy.RequestContext

// Event defines a public type used by idp APIs.
//
// Event instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Event = secevent.Event

// EventSink defines a public type used by idp APIs.
//
// EventSink instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EventSink = secevent.Sink

// NoOpSink defines a public type used by idp APIs.
//
// NoOpSink instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type NoOpSink = secevent.NoOpSink

// ChannelSink defines a public type used by idp APIs.
//
// ChannelSink instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ChannelSink = secevent.ChannelSink

// NewChannelSink describes the newchannelsink operation and its observable behavior.
//
// NewChannelSink may return an error when input validation, dependency calls, or security checks fail.
// NewChannelSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewChannelSink(buffer int) *ChannelSink {
	return secevent.NewChannelSink(buffer)
}

// ConfigurationProvider supplies the enabled policy configuration for a
// (tenant, flow) pair. Returning (nil, nil) means no configuration exists;
// a non-nil error means the backing store could not be consulted.
type ConfigurationProvider interface {
	GetPolicyConfiguration(ctx context.Context, tenantID, flow string) (*policy.Configuration, error)
}

// CredentialStore is the host application's account backend. All lookups are
// tenant-scoped. Verify methods report (userID, ok, err): ok=false with a nil
// error is a normal authentication failure, err signals backend trouble.
type CredentialStore interface {
	VerifyPassword(ctx context.Context, tenantID, username, password string) (string, bool, error)
	VerifyWebAuthnAssertion(ctx context.Context, tenantID string, assertion []byte) (string, bool, error)
	LookupEmail(ctx context.Context, tenantID, email string) (string, bool, error)
	LookupPhone(ctx context.Context, tenantID, phone string) (string, bool, error)
	RegisterUser(ctx context.Context, tenantID, username, passwordHash string, profile map[string]string) (string, error)
	UpdatePassword(ctx context.Context, tenantID, userID, passwordHash string) error
}

// DefaultChallengeTemplate is an exported constant or variable used by the authentication engine.
const DefaultChallengeTemplate = "default"

// EmailSender delivers one-time codes over email. The template name selects
// the message body; senders must treat unknown names as the default template.
type EmailSender interface {
	SendCode(ctx context.Context, tenantID, email, code, template string) error
}

// SMSSender delivers one-time codes over SMS. The template name selects the
// message body; senders must treat unknown names as the default template.
type SMSSender interface {
	SendCode(ctx context.Context, tenantID, phone, code, template string) error
}

// InteractionResult defines a public type used by idp APIs.
//
// InteractionResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type InteractionResult struct {
	Status string         `json:"status"`
	Body   map[string]any `json:"body,omitempty"`
}

const (
	// InteractionStatusSuccess is an exported constant or variable used by the authentication engine.
	InteractionStatusSuccess = "success"
	// InteractionStatusChallengeIssued is an exported constant or variable used by the authentication engine.
	InteractionStatusChallengeIssued = "challenge_issued"
	// InteractionStatusDenied is an exported constant or variable used by the authentication engine.
	InteractionStatusDenied = "denied"
)

// CompletionResult reports the outcome of completing a transaction: the op
// session that now backs the authorization and the signed cookie value to set.
type CompletionResult struct {
	UserID          string
	AuthorizationID string
	SessionID       string
	SessionAction   session.Action
	Cookie          string
}

// SilentAuthorization is the answer to a prompt=none check.
type SilentAuthorization struct {
	Authorized bool
	UserID     string
	SessionID  string
}

// AuthenticationPolicyView is the client-safe projection of the policy
// snapshot bound to a transaction. Success conditions and matching rules are
// deliberately omitted.
type AuthenticationPolicyView struct {
	Priority         int      `json:"priority"`
	Description      string   `json:"description"`
	AvailableMethods []string `json:"available_methods"`
}

// MethodView defines a public type used by idp APIs.
//
// MethodView instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MethodView struct {
	AttemptCount int `json:"attempt_count"`
	SuccessCount int `json:"success_count"`
}

// TransactionView is the client-safe projection of a transaction record.
type TransactionView struct {
	ID              string                   `json:"id"`
	AuthorizationID string                   `json:"authorization_id"`
	Flow            string                   `json:"flow"`
	Status          string                   `json:"status"`
	UserBound       bool                     `json:"user_bound"`
	Satisfied       bool                     `json:"satisfied"`
	Policy          AuthenticationPolicyView `json:"authentication_policy"`
	Methods         map[string]MethodView    `json:"methods,omitempty"`
	ExpiresAt       int64                    `json:"expires_at"`
}
