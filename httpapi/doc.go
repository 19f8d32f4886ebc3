// Package httpapi exposes the authentication engine over a small chi-routed
// HTTP surface with a structured JSON error contract.
//
// Every error the engine declares maps to a fixed status code and a body of
// the form {"error", "error_description", "scope"}; malformed payloads are
// rejected locally with 400 and never reach the engine.
//
// # Architecture boundaries
//
//   - The engine owns all state and decisions; this package only translates
//     HTTP requests and responses.
//   - The op-session cookie is read from and written to the standard Cookie
//     mechanism; its value is the engine's signed cookie string.
//
// # What this package must NOT do
//
//   - Reach into Redis or any store directly.
//   - Leak credential or destination existence through error bodies.
package httpapi
