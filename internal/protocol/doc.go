// Package protocol owns the pool wire contract.
//
// Ownership boundary:
// - wire: positional field primitives
// - payload: deferred payloads and the conversion pool
// - message, message/v1, message/v2: per-generation message schemas
// - frame: length-prefixed stream framing
// - profile: per-connection generation selection
package protocol
