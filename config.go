package idp

import (
	"errors"
	"time"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/session"
)

// Config defines a public type used by idp APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Transaction TransactionConfig
	Session     SessionConfig
	Challenge   ChallengeConfig
	Grant       GrantConfig
	Password    PasswordConfig
	PolicyCache PolicyCacheConfig
	Events      EventsConfig
	Metrics     MetricsConfig
}

/*
====================================
TRANSACTION CONFIG
====================================
*/

// TransactionConfig defines a public type used by idp APIs.
//
// TransactionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TransactionConfig struct {
	Lifetime             time.Duration
	MaxAttemptsPerMethod int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by idp APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix  string
	Lifetime     time.Duration
	SwitchPolicy session.SwitchPolicy
	CookieSecret []byte
	CookieTTL    time.Duration
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig defines a public type used by idp APIs.
//
// ChallengeConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ChallengeConfig struct {
	TTL       time.Duration
	OTPDigits int
}

// GrantConfig defines a public type used by idp APIs.
//
// GrantConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type GrantConfig struct {
	TTL time.Duration
}

// PasswordConfig defines a public type used by idp APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// PolicyCacheConfig defines a public type used by idp APIs.
//
// PolicyCacheConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PolicyCacheConfig struct {
	TTL time.Duration
}

// EventsConfig defines a public type used by idp APIs.
//
// EventsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EventsConfig struct {
	Enabled      bool
	BufferSize   int
	DropIfFull   bool
	FlushTimeout time.Duration
}

// MetricsConfig defines a public type used by idp APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Transaction: TransactionConfig{
			Lifetime:             10 * time.Minute,
			MaxAttemptsPerMethod: 5,
		},
		Session: SessionConfig{
			RedisPrefix:  "ops",
			Lifetime:     24 * time.Hour,
			SwitchPolicy: session.SwitchAllowed,
			CookieTTL:    24 * time.Hour,
		},
		Challenge: ChallengeConfig{
			TTL:       5 * time.Minute,
			OTPDigits: 6,
		},
		Grant: GrantConfig{
			TTL: 30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		PolicyCache: PolicyCacheConfig{
			TTL: 30 * time.Second,
		},
		Events: EventsConfig{
			Enabled:      true,
			BufferSize:   256,
			DropIfFull:   true,
			FlushTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c Config) Validate() error {
	if c.Transaction.Lifetime <= 0 {
		return errors.New("transaction lifetime must be positive")
	}
	if c.Transaction.MaxAttemptsPerMethod <= 0 {
		return errors.New("transaction max attempts must be positive")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("session lifetime must be positive")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("session redis prefix required")
	}
	switch c.Session.SwitchPolicy {
	case session.SwitchStrict, session.SwitchAllowed:
	default:
		return errors.New("session switch policy must be STRICT or SWITCH_ALLOWED")
	}
	if len(c.Session.CookieSecret) < 32 {
		return errors.New("session cookie secret must be at least 32 bytes")
	}
	if c.Session.CookieTTL <= 0 {
		return errors.New("session cookie ttl must be positive")
	}
	if c.Challenge.TTL <= 0 {
		return errors.New("challenge ttl must be positive")
	}
	if c.Challenge.OTPDigits < 6 || c.Challenge.OTPDigits > 10 {
		return errors.New("challenge otp digits must be between 6 and 10")
	}
	if c.Grant.TTL <= 0 {
		return errors.New("grant ttl must be positive")
	}
	if c.PolicyCache.TTL < 0 {
		return errors.New("policy cache ttl must not be negative")
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.CookieSecret = cloneBytes(cfg.Session.CookieSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
