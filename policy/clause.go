package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// StateReader resolves a dot-separated path into the transaction state bag.
// A path that cannot be resolved returns ok=false; absence is never an error
// so partially completed transactions evaluate safely.
type StateReader interface {
	Lookup(path []string) (any, bool)
}

var (
	// ErrInvalidClause is an exported constant or variable used by the authentication engine.
	ErrInvalidClause = errors.New("invalid success-condition clause")
)

type valueType uint8

const (
	typeInteger valueType = iota
	typeString
	typeBoolean
)

type operation uint8

const (
	opEq operation = iota
	opNe
	opGte
	opGt
	opLte
	opLt
)

type compiledClause struct {
	path      []string
	typ       valueType
	op        operation
	intValue  int64
	strValue  string
	boolValue bool
}

// Compiled is a policy whose success-condition clauses have been parsed into a
// typed expression form. Compilation happens once at configuration load;
// evaluation never parses paths or coerces clause values.
type Compiled struct {
	source Policy
	anyOf  [][]compiledClause
}

// Compile validates and compiles the policy's success conditions. Unknown
// operations, unknown types, type/operation mismatches, and malformed paths
// are rejected here so they can never surface mid-transaction.
func Compile(p Policy) (*Compiled, error) {
	cp := &Compiled{source: p.Clone()}
	for i, group := range p.SuccessConditions.AnyOf {
		compiled := make([]compiledClause, 0, len(group))
		for j, clause := range group {
			cc, err := compileClause(clause)
			if err != nil {
				return nil, fmt.Errorf("%w: any_of[%d][%d]: %v", ErrInvalidClause, i, j, err)
			}
			compiled = append(compiled, cc)
		}
		cp.anyOf = append(cp.anyOf, compiled)
	}
	return cp, nil
}

// Source returns the policy this compiled form was built from.
func (cp *Compiled) Source() Policy {
	return cp.source.Clone()
}

// Satisfied evaluates the compiled success conditions against the state bag:
// OR across clause groups, AND within a group. An empty any_of never
// satisfies; a clause whose path is absent from the state bag is false.
func (cp *Compiled) Satisfied(state StateReader) bool {
	for _, group := range cp.anyOf {
		if groupSatisfied(group, state) {
			return true
		}
	}
	return false
}

func groupSatisfied(group []compiledClause, state StateReader) bool {
	if len(group) == 0 {
		return false
	}
	for _, clause := range group {
		if !clause.holds(state) {
			return false
		}
	}
	return true
}

func (c compiledClause) holds(state StateReader) bool {
	raw, ok := state.Lookup(c.path)
	if !ok {
		return false
	}

	switch c.typ {
	case typeInteger:
		actual, ok := asInt64(raw)
		if !ok {
			return false
		}
		switch c.op {
		case opEq:
			return actual == c.intValue
		case opNe:
			return actual != c.intValue
		case opGte:
			return actual >= c.intValue
		case opGt:
			return actual > c.intValue
		case opLte:
			return actual <= c.intValue
		case opLt:
			return actual < c.intValue
		}
	case typeString:
		actual, ok := raw.(string)
		if !ok {
			return false
		}
		if c.op == opEq {
			return actual == c.strValue
		}
		return actual != c.strValue
	case typeBoolean:
		actual, ok := raw.(bool)
		if !ok {
			return false
		}
		if c.op == opEq {
			return actual == c.boolValue
		}
		return actual != c.boolValue
	}
	return false
}

func compileClause(clause Clause) (compiledClause, error) {
	var cc compiledClause

	path, err := parsePath(clause.Path)
	if err != nil {
		return cc, err
	}
	cc.path = path

	switch clause.Type {
	case "integer":
		cc.typ = typeInteger
	case "string":
		cc.typ = typeString
	case "boolean":
		cc.typ = typeBoolean
	default:
		return cc, fmt.Errorf("unknown type %q", clause.Type)
	}

	op, err := parseOperation(clause.Operation)
	if err != nil {
		return cc, err
	}
	if cc.typ != typeInteger && op != opEq && op != opNe {
		return cc, fmt.Errorf("operation %q requires type integer", clause.Operation)
	}
	cc.op = op

	switch cc.typ {
	case typeInteger:
		v, ok := asInt64(clause.Value)
		if !ok {
			return cc, fmt.Errorf("value %v is not an integer", clause.Value)
		}
		cc.intValue = v
	case typeString:
		v, ok := clause.Value.(string)
		if !ok {
			return cc, fmt.Errorf("value %v is not a string", clause.Value)
		}
		cc.strValue = v
	case typeBoolean:
		v, ok := clause.Value.(bool)
		if !ok {
			return cc, fmt.Errorf("value %v is not a boolean", clause.Value)
		}
		cc.boolValue = v
	}

	return cc, nil
}

func parseOperation(op string) (operation, error) {
	switch op {
	case "eq":
		return opEq, nil
	case "ne":
		return opNe, nil
	case "gte":
		return opGte, nil
	case "gt":
		return opGt, nil
	case "lte":
		return opLte, nil
	case "lt":
		return opLt, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", op)
	}
}

func parsePath(raw string) ([]string, error) {
	trimmed := strings.TrimPrefix(raw, "$.")
	if trimmed == "" || trimmed == "$" {
		return nil, errors.New("empty path")
	}
	segments := strings.Split(trimmed, ".")
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("malformed path %q", raw)
		}
	}
	return segments, nil
}

// asInt64 accepts the integer representations that survive JSON decoding and
// Go literals in configuration code.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
