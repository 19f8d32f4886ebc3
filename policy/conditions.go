package policy

// Conditions restricts which authorization requests a policy applies to. A nil
// Conditions value, and every absent or empty field, acts as a wildcard: only
// fields that are present with at least one value constrain matching.
type Conditions struct {
	Scopes    []string `json:"scopes,omitempty"`
	ClientIDs []string `json:"client_ids,omitempty"`
	ACRValues []string `json:"acr_values,omitempty"`
}

// Matches reports whether the request context satisfies every declared
// condition. Scopes match on set intersection: one shared scope between the
// request and the policy is enough. ClientIDs and ACRValues match when the
// request carries a value that is a member of the declared list.
func (c *Conditions) Matches(rc RequestContext) bool {
	if c == nil {
		return true
	}
	if len(c.ClientIDs) > 0 && !contains(c.ClientIDs, rc.ClientID) {
		return false
	}
	if len(c.Scopes) > 0 && !intersects(c.Scopes, rc.Scopes) {
		return false
	}
	if len(c.ACRValues) > 0 && !intersects(c.ACRValues, rc.ACRValues) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func intersects(declared, requested []string) bool {
	for _, r := range requested {
		if contains(declared, r) {
			return true
		}
	}
	return false
}
