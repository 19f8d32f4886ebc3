// Package idp provides the authentication policy engine and authentication
// transaction orchestrator of an OAuth 2.0 / OpenID Connect authorization
// server: prioritized policy selection, multi-step resumable authentication
// transactions (password, email OTP, SMS OTP, WebAuthn, initial registration),
// Redis-backed op-sessions with STRICT / SWITCH_ALLOWED session-switch rules,
// and authorization-grant recording for silent SSO.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// idp is the public surface. It exposes [Engine], [Builder], [Config], and the
// collaborator interfaces ([ConfigurationProvider], [CredentialStore],
// [EmailSender], [SMSSender], [EventSink]). Policy evaluation lives in policy/,
// transaction and session persistence in transaction/ and session/, and all
// internal coordination — event dispatch, metrics storage, random material —
// lives under internal/ and is never exported.
//
// # What this package must NOT do
//
//   - Issue, introspect, or revoke OAuth tokens; token mechanics belong to the
//     authorization-server layer that embeds this engine.
//   - Deliver email or SMS itself; delivery goes through injected senders.
//   - Keep transaction or session state in process memory; hot state lives in
//     Redis so multi-instance deployments share one view.
//
// # Concurrency contract
//
// Mutations of a single authentication transaction are linearizable: the
// transaction store applies every change through a bounded-retry WATCH/MULTI
// compare-and-set. Session establishment (create / reuse / switch) is one
// atomic Lua read-decide-write. Delivery collaborators are only called after
// the owning transaction update has committed.
package idp
