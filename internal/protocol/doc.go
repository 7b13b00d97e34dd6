// Package protocol owns the wire contract.
//
// Ownership boundary:
// - envelope shape and kinds
// - error-body payloads for cross-process error propagation
// - protocol error taxonomy
package protocol
