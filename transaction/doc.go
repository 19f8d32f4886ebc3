// Package transaction provides the resumable authentication transaction model
// and its Redis-backed store.
//
// # Record shape
//
// Transactions are stored as JSON keyed by transaction ID. The per-method
// counters use the same field names that policy success conditions address
// ($.method.attempt_count, $.method.success_count), so [Transaction.Lookup]
// can serve as the policy state bag directly.
//
// # Concurrency
//
// [Store.Update] is a WATCH-based compare-and-swap with bounded retries.
// Concurrent interactions against the same transaction serialize: the loser
// re-reads the committed record and replays its mutation.
//
// # Architecture boundaries
//
// This package owns transaction persistence and the record model. It does NOT
// evaluate policies, execute interactions, or touch sessions — those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Decide interaction outcomes; the mutation closure belongs to the caller.
//   - Import idp or the session package (no upward imports).
//   - Store plaintext one-time codes; only transaction-bound hashes.
package transaction
