// Package session provides Redis-backed op-session persistence, compact binary
// session encoding, and the signed cookie codec for session references.
//
// # Binary encoding
//
// Sessions are stored in Redis as a compact binary format (schema v1). The
// three trailing big-endian timestamps sit at fixed offsets from the end of
// the blob so the Establish Lua script can splice LastUsedAt atomically
// without re-encoding.
//
// # Establish protocol
//
// [Store.Establish] resolves a completed authentication against the presented
// op session in a single Lua script: same user reuses, a different user is
// rejected (STRICT) or replaces the old session (SWITCH_ALLOWED), and no live
// session creates a fresh one. Concurrent completions against the same
// presented session serialize inside Redis.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations), the [Session] model, and
// the [CookieCodec]. It does NOT evaluate authentication policy or record
// authorization grants — those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import idp or any sibling package (no upward imports).
//   - Perform application-level authorization decisions.
//   - Store plaintext credentials in [Session] fields.
package session
