// Package policy implements declarative authentication policy definitions,
// request-context condition matching, and success-condition evaluation over a
// path-addressed transaction state bag.
//
// # Components
//
//   - [Configuration] / [Policy] — the per-tenant, per-flow policy model.
//   - [Conditions] — request matching (scopes, client_ids, acr_values).
//   - [Clause] / [Compiled] — success conditions compiled once at load time
//     into a typed expression form; evaluation is allocation-light and pure.
//   - [Select] — priority-ordered selection with deterministic tie-breaking.
//
// # Architecture boundaries
//
// This package owns policy semantics only. It does NOT load configuration,
// cache it, or touch Redis — those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Mutate transaction state; every evaluation is read-only.
//   - Import the root package or any sibling package (no upward imports).
//   - Defer validation to evaluation time: unknown operations and malformed
//     clauses are rejected by [Compile], never surfaced mid-transaction.
package policy
