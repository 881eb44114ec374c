// Package mapclient is a client for a hosted verifiable map: a key-value store backed by a
// sparse Merkle tree whose mutations are sequenced in an append only log.
//
// Reads return the value of a key together with its audit path, decoded from the
// X-Verified-Proof response headers. Nothing is verified implicitly: see package prover for
// map inclusion proofs, and VerifiableLog for the mutation log.
package mapclient
