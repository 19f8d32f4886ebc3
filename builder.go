package idp

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/internal/secevent"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/password"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/session"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/transaction"
)

// Builder defines a public type used by idp APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client

	configProvider ConfigurationProvider
	credentials    CredentialStore
	emailSender    EmailSender
	smsSender      SMSSender
	eventSink      EventSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithConfigurationProvider describes the withconfigurationprovider operation and its observable behavior.
//
// WithConfigurationProvider may return an error when input validation, dependency calls, or security checks fail.
// WithConfigurationProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfigurationProvider(p ConfigurationProvider) *Builder {
	b.configProvider = p
	return b
}

// WithCredentialStore describes the withcredentialstore operation and its observable behavior.
//
// WithCredentialStore may return an error when input validation, dependency calls, or security checks fail.
// WithCredentialStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithCredentialStore(cs CredentialStore) *Builder {
	b.credentials = cs
	return b
}

// WithEmailSender describes the withemailsender operation and its observable behavior.
//
// WithEmailSender may return an error when input validation, dependency calls, or security checks fail.
// WithEmailSender does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithEmailSender(s EmailSender) *Builder {
	b.emailSender = s
	return b
}

// WithSMSSender describes the withsmssender operation and its observable behavior.
//
// WithSMSSender may return an error when input validation, dependency calls, or security checks fail.
// WithSMSSender does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSMSSender(s SMSSender) *Builder {
	b.smsSender = s
	return b
}

// WithEventSink describes the witheventsink operation and its observable behavior.
//
// WithEventSink may return an error when input validation, dependency calls, or security checks fail.
// WithEventSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.configProvider == nil {
		return nil, errors.New("configuration provider required")
	}

	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}

	cookieCodec, err := session.NewCookieCodec(cfg.Session.CookieSecret, cfg.Session.CookieTTL)
	if err != nil {
		return nil, err
	}

	passwordHash, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:           cloneConfig(cfg),
		configProvider:   b.configProvider,
		credentials:      b.credentials,
		emailSender:      b.emailSender,
		smsSender:        b.smsSender,
		transactionStore: transaction.NewStore(b.redis),
		sessionStore:     session.NewStore(b.redis, cfg.Session.RedisPrefix),
		grantStore:       newGrantStore(b.redis, cfg.Grant.TTL),
		cookieCodec:      cookieCodec,
		policyCache:      newPolicyCache(cfg.PolicyCache.TTL),
		passwordHash:     passwordHash,
	}

	engine.events = secevent.NewDispatcher(secevent.Config{
		Enabled:      cfg.Events.Enabled,
		BufferSize:   cfg.Events.BufferSize,
		DropIfFull:   cfg.Events.DropIfFull,
		FlushTimeout: cfg.Events.FlushTimeout,
	}, b.eventSink)

	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
