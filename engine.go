package idp

import (
	"context"
	"time"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/internal/secevent"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/password"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/policy"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/session"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/transaction"
)

// Engine defines a public type used by idp APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config           Config
	configProvider   ConfigurationProvider
	credentials      CredentialStore
	emailSender      EmailSender
	smsSender        SMSSender
	transactionStore *transaction.Store
	sessionStore     *session.Store
	grantStore       *grantStore
	cookieCodec      *session.CookieCodec
	policyCache      *policyCache
	events           *secevent.Dispatcher
	metrics          *Metrics
	passwordHash     *password.Argon2
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.events != nil {
		e.events.Close()
	}
}

// EventsDropped describes the eventsdropped operation and its observable behavior.
//
// EventsDropped may return an error when input validation, dependency calls, or security checks fail.
// EventsDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) EventsDropped() uint64 {
	if e == nil || e.events == nil {
		return 0
	}
	return e.events.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// Ping describes the ping operation and its observable behavior.
//
// Ping may return an error when input validation, dependency calls, or security checks fail.
// Ping does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessionStore.Ping(ctx)
}

// compileSnapshot compiles a transaction's policy snapshot. The snapshot was
// validated at load time, so a compile failure here means the stored record
// was tampered with or written by an incompatible version.
func compileSnapshot(p policy.Policy) (*policy.Compiled, error) {
	compiled, err := policy.Compile(p)
	if err != nil {
		return nil, ErrPolicyConfigurationInvalid
	}
	return compiled, nil
}
