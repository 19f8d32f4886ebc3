package idp

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002/policy"
)

type policyCacheEntry struct {
	cfg       *policy.Configuration
	fetchedAt time.Time
}

// policyCache is a read-through in-process cache for policy configurations.
// The provider stays the source of truth; management writes call
// [Engine.InvalidatePolicyConfiguration] to drop a stale entry early.
type policyCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]policyCacheEntry
}

func newPolicyCache(ttl time.Duration) *policyCache {
	return &policyCache{
		ttl:     ttl,
		entries: make(map[string]policyCacheEntry),
	}
}

func policyCacheKey(tenantID, flow string) string {
	return strconv.Itoa(len(tenantID)) + ":" + tenantID + ":" + flow
}

func (c *policyCache) get(tenantID, flow string) (*policy.Configuration, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[policyCacheKey(tenantID, flow)]
	if !ok {
		return nil, false
	}
	if time.Since(entry.fetchedAt) > c.ttl {
		delete(c.entries, policyCacheKey(tenantID, flow))
		return nil, false
	}
	return entry.cfg, true
}

func (c *policyCache) put(tenantID, flow string, cfg *policy.Configuration) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[policyCacheKey(tenantID, flow)] = policyCacheEntry{
		cfg:       cfg,
		fetchedAt: time.Now(),
	}
}

func (c *policyCache) invalidate(tenantID, flow string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, policyCacheKey(tenantID, flow))
}

// SelectPolicy describes the selectpolicy operation and its observable behavior.
//
// SelectPolicy may return an error when input validation, dependency calls, or security checks fail.
// SelectPolicy does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SelectPolicy(ctx context.Context, tenantID, flow string, rc RequestContext) (policy.Policy, error) {
	if e == nil || e.configProvider == nil {
		return policy.Policy{}, ErrEngineNotReady
	}

	cfg, err := e.loadConfiguration(ctx, tenantID, flow)
	if err != nil {
		e.metricInc(MetricPolicySelectionFailed)
		e.emitEvent(ctx, eventPolicySelectionFailed, false, "", tenantID, "", "", err, nil)
		return policy.Policy{}, err
	}

	selected, err := policy.Select(cfg, rc)
	if err != nil {
		e.metricInc(MetricPolicySelectionFailed)
		mapped := mapSelectionError(err)
		e.emitEvent(ctx, eventPolicySelectionFailed, false, "", tenantID, "", "", mapped, func() map[string]string {
			return map[string]string{"flow": flow, "client_id": rc.ClientID}
		})
		return policy.Policy{}, mapped
	}

	e.metricInc(MetricPolicySelected)
	e.emitEvent(ctx, eventPolicySelected, true, "", tenantID, "", "", nil, func() map[string]string {
		return map[string]string{
			"flow":        flow,
			"client_id":   rc.ClientID,
			"description": selected.Description,
			"priority":    strconv.Itoa(selected.Priority),
		}
	})

	return selected, nil
}

// InvalidatePolicyConfiguration describes the invalidatepolicyconfiguration operation and its observable behavior.
//
// InvalidatePolicyConfiguration may return an error when input validation, dependency calls, or security checks fail.
// InvalidatePolicyConfiguration does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) InvalidatePolicyConfiguration(tenantID, flow string) {
	if e == nil {
		return
	}
	e.policyCache.invalidate(tenantID, flow)
	e.emitEvent(context.Background(), eventPolicyConfigInvalidated, true, "", tenantID, "", "", nil, func() map[string]string {
		return map[string]string{"flow": flow}
	})
}

// loadConfiguration reads the (tenant, flow) configuration through the cache
// and validates it at the boundary: every policy's success conditions must
// compile and every listed method must be a known interaction family.
func (e *Engine) loadConfiguration(ctx context.Context, tenantID, flow string) (*policy.Configuration, error) {
	if cfg, ok := e.policyCache.get(tenantID, flow); ok {
		e.metricInc(MetricPolicyCacheHit)
		return cfg, nil
	}
	e.metricInc(MetricPolicyCacheMiss)

	cfg, err := e.configProvider.GetPolicyConfiguration(ctx, tenantID, flow)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrPolicyNotConfigured
	}

	if err := validateConfiguration(cfg); err != nil {
		e.emitEvent(ctx, eventPolicyConfigLoadRejected, false, "", tenantID, "", "", ErrPolicyConfigurationInvalid, func() map[string]string {
			return map[string]string{"flow": flow, "reason": err.Error()}
		})
		return nil, ErrPolicyConfigurationInvalid
	}

	e.policyCache.put(tenantID, flow, cfg)
	return cfg, nil
}

func validateConfiguration(cfg *policy.Configuration) error {
	for i := range cfg.Policies {
		if _, err := policy.Compile(cfg.Policies[i]); err != nil {
			return err
		}
		for _, method := range cfg.Policies[i].AvailableMethods {
			if !knownMethod(method) {
				return ErrUnsupportedInteractionType
			}
		}
	}
	return nil
}

func mapSelectionError(err error) error {
	switch err {
	case policy.ErrNotConfigured:
		return ErrPolicyNotConfigured
	case policy.ErrNoneMatched:
		return ErrNoPolicyMatched
	default:
		return err
	}
}
