// Package internal contains helper utilities that are intentionally private to idp,
// including secure random generation and challenge hashing helpers.
//
// # Sub-packages
//
//   - secevent — async security event dispatch (Dispatcher + Sink implementations)
//
// # What this package must NOT do
//
//   - Export types that appear in the public idp API.
//   - Be imported by any package outside the idp module.
package internal
