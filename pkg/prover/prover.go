package prover

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/transparency-dev/merkle/rfc6962"

	"github.com/netsec-ethz/vmapclient/pkg/common"
	"github.com/netsec-ethz/vmapclient/pkg/mapclient"
)

// ErrVerificationFailed is returned when an audit path does not lead to the trusted root.
var ErrVerificationFailed = errors.New("map inclusion verification failed")

// defaultHashes[d] is the root of an empty subtree at depth d. defaultHashes[256] is the
// leaf hash of the empty value.
var defaultHashes = computeDefaultHashes()

func computeDefaultHashes() [][]byte {
	h := rfc6962.DefaultHasher
	values := make([][]byte, mapclient.MapTreeHeight+1)
	values[mapclient.MapTreeHeight] = h.HashLeaf(nil)
	for i := mapclient.MapTreeHeight - 1; i >= 0; i-- {
		values[i] = h.HashChildren(values[i+1], values[i+1])
	}
	return values
}

// EmptyMapRoot is the root hash of a map without any key.
func EmptyMapRoot() []byte {
	return append([]byte(nil), defaultHashes[0]...)
}

// VerifyMapInclusion checks that the value and audit path in resp lead to the root hash of the
// trusted head. This proves inclusion of a present value, or absence of an empty one.
// If the server attested a tree size with the response, it must be the size of the head.
func VerifyMapInclusion(head *mapclient.MapTreeHead, resp *mapclient.MapGetEntryResponse) error {
	if resp.TreeSize != -1 && resp.TreeSize != head.TreeSize() {
		return fmt.Errorf("%w: proof for size %d, head of size %d",
			ErrVerificationFailed, resp.TreeSize, head.TreeSize())
	}
	leafHash, err := resp.Value.LeafHash()
	if err != nil {
		return fmt.Errorf("VerifyMapInclusion | LeafHash | %w", err)
	}
	root := RootFromAuditPath(resp.Key, leafHash, &resp.AuditPath)
	if !bytes.Equal(root, head.RootHash) {
		return fmt.Errorf("%w: key %x computes root %x, expected %x",
			ErrVerificationFailed, resp.Key, root, head.RootHash)
	}
	return nil
}

// RootFromAuditPath folds the audit path from the leaf up to the root. The position of the
// leaf is given by the bits of SHA256(key), most significant first. Absent siblings are
// empty subtrees.
func RootFromAuditPath(key, leafHash []byte, path *mapclient.AuditPath) []byte {
	return subtreeRoot(common.NewKeyPath(key), leafHash, path, 0)
}

// subtreeRoot computes the root of the subtree at depth `depth` containing the leaf.
func subtreeRoot(keyPath common.KeyPath, leafHash []byte, path *mapclient.AuditPath, depth int) []byte {
	h := rfc6962.DefaultHasher
	t := leafHash
	for i := mapclient.MapTreeHeight - 1; i >= depth; i-- {
		sibling := path[i]
		if sibling == nil {
			sibling = defaultHashes[i+1]
		}
		if keyPath.Bit(i) {
			t = h.HashChildren(sibling, t)
		} else {
			t = h.HashChildren(t, sibling)
		}
	}
	return t
}
