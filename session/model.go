package session

// SwitchPolicy defines a public type used by idp APIs.
//
// SwitchPolicy instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SwitchPolicy string

const (
	// SwitchStrict is an exported constant or variable used by the authentication engine.
	SwitchStrict SwitchPolicy = "STRICT"
	// SwitchAllowed is an exported constant or variable used by the authentication engine.
	SwitchAllowed SwitchPolicy = "SWITCH_ALLOWED"
)

// Action defines a public type used by idp APIs.
//
// Action instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Action string

const (
	// ActionCreated is an exported constant or variable used by the authentication engine.
	ActionCreated Action = "created"
	// ActionReused is an exported constant or variable used by the authentication engine.
	ActionReused Action = "reused"
	// ActionSwitched is an exported constant or variable used by the authentication engine.
	ActionSwitched Action = "switched"
	// ActionRejected is an exported constant or variable used by the authentication engine.
	ActionRejected Action = "rejected"
)

// Session defines a public type used by idp APIs.
//
// Session instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Session struct {
	SessionID string
	UserID    string
	TenantID  string

	CreatedAt  int64
	LastUsedAt int64
	ExpiresAt  int64
}

// Result reports what [Store.Establish] did with the presented op session.
type Result struct {
	Action         Action
	Session        *Session
	PreviousUserID string
}
