package policy

// RequestContext carries the authorization-request attributes that policy
// conditions match against.
type RequestContext struct {
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes,omitempty"`
	ACRValues []string `json:"acr_values,omitempty"`
}

// Clause is a single success-condition predicate over the transaction state
// bag, e.g. path "$.email-authentication.success_count", type "integer",
// operation "gte", value 1.
type Clause struct {
	Path      string `json:"path"`
	Type      string `json:"type"`
	Operation string `json:"operation"`
	Value     any    `json:"value"`
}

// SuccessConditions is disjunctive normal form: the transaction succeeds when
// ANY inner clause list is fully satisfied (OR of ANDs).
type SuccessConditions struct {
	AnyOf [][]Clause `json:"any_of"`
}

// Policy defines a public type used by idp APIs.
//
// Policy instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Policy struct {
	Description       string            `json:"description"`
	Priority          int               `json:"priority"`
	Conditions        *Conditions       `json:"conditions,omitempty"`
	AvailableMethods  []string          `json:"available_methods"`
	SuccessConditions SuccessConditions `json:"success_conditions"`
}

// Configuration is the ordered set of policies for one (tenant, flow). At most
// one enabled Configuration is considered per (tenant, flow).
type Configuration struct {
	ID       string   `json:"id"`
	Flow     string   `json:"flow"`
	Enabled  bool     `json:"enabled"`
	Policies []Policy `json:"policies"`
}

// Clone returns a deep copy of the policy. Selection always hands out clones
// so configuration edits never mutate an in-flight transaction's snapshot.
func (p Policy) Clone() Policy {
	out := p
	out.AvailableMethods = append([]string(nil), p.AvailableMethods...)
	if p.Conditions != nil {
		c := Conditions{
			Scopes:    append([]string(nil), p.Conditions.Scopes...),
			ClientIDs: append([]string(nil), p.Conditions.ClientIDs...),
			ACRValues: append([]string(nil), p.Conditions.ACRValues...),
		}
		out.Conditions = &c
	}
	if p.SuccessConditions.AnyOf != nil {
		anyOf := make([][]Clause, len(p.SuccessConditions.AnyOf))
		for i, group := range p.SuccessConditions.AnyOf {
			anyOf[i] = append([]Clause(nil), group...)
		}
		out.SuccessConditions.AnyOf = anyOf
	}
	return out
}
