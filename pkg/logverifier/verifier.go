package logverifier

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/trillian"
	"github.com/google/trillian/types"
	"github.com/transparency-dev/merkle"
	mproof "github.com/transparency-dev/merkle/proof"
	"github.com/transparency-dev/merkle/rfc6962"
)

// ErrVerificationFailed is returned when a proof does not match the trusted root.
var ErrVerificationFailed = errors.New("verification failed")

// LogVerifier: verifies proofs returned by the append only logs of a map.
type LogVerifier struct {
	hasher merkle.LogHasher
}

// NewLogVerifier: return a new log verifier. A nil hasher means RFC 6962 SHA-256.
func NewLogVerifier(hasher merkle.LogHasher) *LogVerifier {
	if hasher == nil {
		hasher = rfc6962.DefaultHasher
	}

	return &LogVerifier{
		hasher: hasher,
	}
}

// HashLeaf: hash the input
func (c *LogVerifier) HashLeaf(input []byte) []byte {
	return c.hasher.HashLeaf(input)
}

// VerifyInclusionWithPrevLogRoot: verify the leaf using an old log root (tree head), and then
// verify the old root against the newest one.
func (c *LogVerifier) VerifyInclusionWithPrevLogRoot(trusted *types.LogRootV1, newRoot *types.LogRootV1,
	consistency [][]byte, leafHash []byte, proof []*trillian.Proof) error {
	switch {
	case trusted == nil:
		return fmt.Errorf("VerifyInclusionWithPrevLogRoot | trusted == nil")
	case newRoot == nil:
		return fmt.Errorf("VerifyInclusionWithPrevLogRoot | newRoot == nil")
	}

	err := c.VerifyInclusionByHash(trusted, leafHash, proof)
	if err != nil {
		return fmt.Errorf("VerifyInclusionWithPrevLogRoot | VerifyInclusionByHash | %w", err)
	}

	_, err = c.VerifyRoot(trusted, newRoot, consistency)
	if err != nil {
		return fmt.Errorf("VerifyInclusionWithPrevLogRoot | VerifyRoot | %w", err)
	}
	return nil
}

// VerifyRoot: verifies that newRoot is a valid append-only operation from
// trusted root. If trusted.TreeSize is zero, a consistency proof is not needed.
// Equal sizes require equal root hashes.
func (c *LogVerifier) VerifyRoot(trusted *types.LogRootV1,
	newRoot *types.LogRootV1, consistency [][]byte) (*types.LogRootV1, error) {
	switch {
	case trusted == nil:
		return nil, fmt.Errorf("VerifyRoot | trusted == nil")
	case newRoot == nil:
		return nil, fmt.Errorf("VerifyRoot | newRoot == nil")
	case trusted.TreeSize > newRoot.TreeSize:
		return nil, fmt.Errorf("%w: log shrank from %d to %d",
			ErrVerificationFailed, trusted.TreeSize, newRoot.TreeSize)
	case trusted.TreeSize == newRoot.TreeSize:
		if !bytes.Equal(trusted.RootHash, newRoot.RootHash) {
			return nil, fmt.Errorf("%w: different roots %x and %x at size %d",
				ErrVerificationFailed, trusted.RootHash, newRoot.RootHash, trusted.TreeSize)
		}
	case trusted.TreeSize != 0:
		// Verify consistency proof.
		if err := mproof.VerifyConsistency(c.hasher, trusted.TreeSize, newRoot.TreeSize,
			consistency, trusted.RootHash, newRoot.RootHash); err != nil {
			return nil, fmt.Errorf("%w: consistency proof from %d->%d %x->%x: %v",
				ErrVerificationFailed, trusted.TreeSize, newRoot.TreeSize, trusted.RootHash,
				newRoot.RootHash, err)
		}
	}
	return newRoot, nil
}

// VerifyInclusionByHash verifies that the inclusion proof for the given Merkle leafHash
// matches the given trusted root.
func (c *LogVerifier) VerifyInclusionByHash(trusted *types.LogRootV1, leafHash []byte,
	proofs []*trillian.Proof) error {
	switch {
	case trusted == nil:
		return fmt.Errorf("VerifyInclusionByHash | trusted == nil")
	case proofs == nil:
		return fmt.Errorf("VerifyInclusionByHash | proof == nil")
	}

	// As long as one proof is verified, the verification is successful: the same leaf
	// content can be present at several indices.
	var lastErr error
	for _, proof := range proofs {
		err := mproof.VerifyInclusion(c.hasher, uint64(proof.LeafIndex), trusted.TreeSize,
			leafHash, proof.Hashes, trusted.RootHash)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("%w: inclusion of %x in tree of size %d: %v",
		ErrVerificationFailed, leafHash, trusted.TreeSize, lastErr)
}
