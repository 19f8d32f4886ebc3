package policy

import (
	"errors"
	"testing"
)

type mapState map[string]any

func (m mapState) Lookup(path []string) (any, bool) {
	cur := any(m)
	for _, seg := range path {
		node, ok := cur.(mapState)
		if !ok {
			return nil, false
		}
		cur, ok = node[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func testConfiguration() *Configuration {
	return &Configuration{
		ID:      "cfg-1",
		Flow:    "oauth",
		Enabled: true,
		Policies: []Policy{
			{
				Description:      "fallback",
				Priority:         0,
				AvailableMethods: []string{"password-authentication"},
			},
			{
				Description: "payments step-up",
				Priority:    10,
				Conditions: &Conditions{
					Scopes: []string{"payments"},
				},
				AvailableMethods: []string{"password-authentication", "email-authentication"},
			},
			{
				Description: "admin client",
				Priority:    10,
				Conditions: &Conditions{
					ClientIDs: []string{"admin-console"},
				},
				AvailableMethods: []string{"webauthn-authentication"},
			},
		},
	}
}

func TestSelectFallbackWildcard(t *testing.T) {
	p, err := Select(testConfiguration(), RequestContext{ClientID: "web", Scopes: []string{"openid"}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if p.Description != "fallback" {
		t.Fatalf("expected fallback policy, got %q", p.Description)
	}
}

func TestSelectHighestPriorityWins(t *testing.T) {
	p, err := Select(testConfiguration(), RequestContext{ClientID: "web", Scopes: []string{"openid", "payments"}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if p.Description != "payments step-up" {
		t.Fatalf("expected payments policy, got %q", p.Description)
	}
}

func TestSelectTieBreaksToFirstDeclared(t *testing.T) {
	// Both priority-10 policies match: the scope condition and the client
	// condition. The first declared must win.
	p, err := Select(testConfiguration(), RequestContext{ClientID: "admin-console", Scopes: []string{"payments"}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if p.Description != "payments step-up" {
		t.Fatalf("expected first-declared tie winner, got %q", p.Description)
	}
}

func TestSelectDisabledConfiguration(t *testing.T) {
	cfg := testConfiguration()
	cfg.Enabled = false
	if _, err := Select(cfg, RequestContext{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := Select(nil, RequestContext{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured for nil configuration, got %v", err)
	}
}

func TestSelectNoneMatched(t *testing.T) {
	cfg := &Configuration{
		ID:      "cfg-2",
		Enabled: true,
		Policies: []Policy{
			{
				Description:      "narrow",
				Conditions:       &Conditions{ClientIDs: []string{"only-this"}},
				AvailableMethods: []string{"password-authentication"},
			},
		},
	}
	if _, err := Select(cfg, RequestContext{ClientID: "other"}); !errors.Is(err, ErrNoneMatched) {
		t.Fatalf("expected ErrNoneMatched, got %v", err)
	}
}

func TestSelectReturnsSnapshot(t *testing.T) {
	cfg := testConfiguration()
	p, err := Select(cfg, RequestContext{ClientID: "web"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	cfg.Policies[0].AvailableMethods[0] = "mutated"
	if p.AvailableMethods[0] != "password-authentication" {
		t.Fatal("selected policy shares backing array with configuration")
	}
}

func TestConditionsScopeIntersection(t *testing.T) {
	c := &Conditions{Scopes: []string{"payments", "transfers"}}
	if !c.Matches(RequestContext{Scopes: []string{"openid", "transfers"}}) {
		t.Fatal("one shared scope should match")
	}
	if c.Matches(RequestContext{Scopes: []string{"openid"}}) {
		t.Fatal("no shared scope should not match")
	}
	if c.Matches(RequestContext{}) {
		t.Fatal("empty request scopes should not satisfy a scope condition")
	}
}

func TestConditionsNilMatchesAll(t *testing.T) {
	var c *Conditions
	if !c.Matches(RequestContext{ClientID: "anything"}) {
		t.Fatal("nil conditions must act as a wildcard")
	}
}

func TestCompileRejectsInvalidClauses(t *testing.T) {
	cases := []Clause{
		{Path: "$.m.success_count", Type: "integer", Operation: "like", Value: 1},
		{Path: "$.m.success_count", Type: "decimal", Operation: "gte", Value: 1},
		{Path: "$.m.name", Type: "string", Operation: "gte", Value: "x"},
		{Path: "$.", Type: "integer", Operation: "gte", Value: 1},
		{Path: "$.m.success_count", Type: "integer", Operation: "gte", Value: "one"},
	}
	for i, clause := range cases {
		p := Policy{SuccessConditions: SuccessConditions{AnyOf: [][]Clause{{clause}}}}
		if _, err := Compile(p); !errors.Is(err, ErrInvalidClause) {
			t.Fatalf("case %d: expected ErrInvalidClause, got %v", i, err)
		}
	}
}

func TestSatisfiedAnyOfSemantics(t *testing.T) {
	p := Policy{
		SuccessConditions: SuccessConditions{AnyOf: [][]Clause{
			{
				{Path: "$.password-authentication.success_count", Type: "integer", Operation: "gte", Value: 1},
				{Path: "$.email-authentication.success_count", Type: "integer", Operation: "gte", Value: 1},
			},
			{
				{Path: "$.webauthn-authentication.success_count", Type: "integer", Operation: "gte", Value: 1},
			},
		}},
	}
	cp, err := Compile(p)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	state := mapState{
		"password-authentication": mapState{"success_count": 1},
	}
	if cp.Satisfied(state) {
		t.Fatal("first group incomplete, second group absent: must not satisfy")
	}

	state["email-authentication"] = mapState{"success_count": 1}
	if !cp.Satisfied(state) {
		t.Fatal("first group fully satisfied: must satisfy")
	}

	webauthnOnly := mapState{
		"webauthn-authentication": mapState{"success_count": 2},
	}
	if !cp.Satisfied(webauthnOnly) {
		t.Fatal("second group satisfied alone: must satisfy")
	}
}

func TestSatisfiedUnknownPathIsFalse(t *testing.T) {
	p := Policy{
		SuccessConditions: SuccessConditions{AnyOf: [][]Clause{
			{{Path: "$.no-such-method.success_count", Type: "integer", Operation: "gte", Value: 1}},
		}},
	}
	cp, err := Compile(p)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if cp.Satisfied(mapState{}) {
		t.Fatal("unknown path must evaluate to clause-false")
	}
}

func TestSatisfiedEmptyAnyOfNeverSatisfies(t *testing.T) {
	cp, err := Compile(Policy{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if cp.Satisfied(mapState{"x": mapState{"y": 1}}) {
		t.Fatal("empty any_of must never satisfy")
	}
}

func TestClauseOperations(t *testing.T) {
	tests := []struct {
		op    string
		typ   string
		value any
		state any
		want  bool
	}{
		{"eq", "integer", 2, 2, true},
		{"ne", "integer", 2, 3, true},
		{"gt", "integer", 2, 2, false},
		{"gte", "integer", 2, 2, true},
		{"lt", "integer", 2, 1, true},
		{"lte", "integer", 2, 3, false},
		{"eq", "string", "locked", "locked", true},
		{"ne", "string", "locked", "open", true},
		{"eq", "boolean", true, true, true},
		{"ne", "boolean", true, true, false},
		// Type mismatch between clause and state is clause-false.
		{"eq", "integer", 1, "1", false},
		{"eq", "string", "1", 1, false},
	}
	for i, tc := range tests {
		p := Policy{SuccessConditions: SuccessConditions{AnyOf: [][]Clause{
			{{Path: "$.m.v", Type: tc.typ, Operation: tc.op, Value: tc.value}},
		}}}
		cp, err := Compile(p)
		if err != nil {
			t.Fatalf("case %d: Compile: %v", i, err)
		}
		got := cp.Satisfied(mapState{"m": mapState{"v": tc.state}})
		if got != tc.want {
			t.Fatalf("case %d (%s %s): got %v, want %v", i, tc.typ, tc.op, got, tc.want)
		}
	}
}

func TestCompileAcceptsJSONNumbers(t *testing.T) {
	// Values decoded from JSON arrive as float64.
	p := Policy{SuccessConditions: SuccessConditions{AnyOf: [][]Clause{
		{{Path: "$.m.success_count", Type: "integer", Operation: "gte", Value: float64(1)}},
	}}}
	cp, err := Compile(p)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !cp.Satisfied(mapState{"m": mapState{"success_count": float64(1)}}) {
		t.Fatal("float64-encoded integers must compare equal")
	}
}
