// Package hashtree implements the BLAKE3 verified-streaming tree used for
// retrievability audits.
//
// Content is split into 1024-byte chunks. Chunks are the leaves of a binary
// tree whose left subtree always covers the largest power of two number of
// chunks strictly less than the span. Leaves and parents are hashed with the
// BLAKE3 compression function and its domain flags, so the root of the tree is
// the plain BLAKE3 hash of the content.
//
// The outboard encoding stores every parent node (the two child chaining
// values, 64 bytes) in pre-order after an 8-byte little-endian length header.
// Leaves are never stored; an auditor recomputes them from fetched bytes. The
// layout is byte-compatible with Bao outboard (.obao) files.
package hashtree
