// Package model defines the boundary types of the oracle: commitments,
// challenges, verdicts, the request/response DTOs and the error taxonomy.
//
// These structs are the only types intended for direct JSON serialization by
// consumers. Hash-tree internals (paths, outboard buffers) stay in hashtree.
package model
