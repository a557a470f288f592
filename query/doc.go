// Package query defines query identities and deterministic key derivation.
//
// A query identity is a server function reference plus an argument mapping.
// Two identities with the same function and deeply equal arguments derive
// the same key regardless of map insertion order, which is what makes
// subscription deduplication possible.
package query
