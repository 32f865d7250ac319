// Package keys provides the oracle's signing keys.
//
// Keys are referred to by public-key strings of the form "<alg>:<base64>"
// (ed25519 or dilithium3). Signatures are made over hash(message) with the
// hash algorithm named in the signer's Alg.
//
// The filesystem KeyStore is a local-first convenience: 32-byte seeds stored
// as hex, with role keys derived deterministically from a root seed.
package keys
