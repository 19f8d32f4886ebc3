package policy

import "errors"

var (
	// ErrNotConfigured is an exported constant or variable used by the authentication engine.
	ErrNotConfigured = errors.New("policy configuration not found or disabled")
	// ErrNoneMatched is an exported constant or variable used by the authentication engine.
	ErrNoneMatched = errors.New("no policy matched the request context")
)

// Select picks the single policy that governs the request: among policies
// whose conditions match, the numerically highest priority wins, and a tie
// breaks to the first declared. The returned policy is a deep snapshot, so
// later configuration edits never change an already-selected policy.
func Select(cfg *Configuration, rc RequestContext) (Policy, error) {
	if cfg == nil || !cfg.Enabled {
		return Policy{}, ErrNotConfigured
	}

	best := -1
	for i := range cfg.Policies {
		if !cfg.Policies[i].Conditions.Matches(rc) {
			continue
		}
		// Strict > keeps declaration order as the tie-break.
		if best < 0 || cfg.Policies[i].Priority > cfg.Policies[best].Priority {
			best = i
		}
	}
	if best < 0 {
		return Policy{}, ErrNoneMatched
	}

	return cfg.Policies[best].Clone(), nil
}
