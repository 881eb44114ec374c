package stubmap

import (
	"github.com/transparency-dev/merkle/rfc6962"

	"github.com/netsec-ethz/vmapclient/pkg/common"
	"github.com/netsec-ethz/vmapclient/pkg/mapclient"
)

type sparseLeaf struct {
	keyPath common.KeyPath
	hash    []byte
}

// emptySubtrees[d] is the root of an empty subtree at depth d.
var emptySubtrees = func() [][]byte {
	h := rfc6962.DefaultHasher
	values := make([][]byte, mapclient.MapTreeHeight+1)
	values[mapclient.MapTreeHeight] = h.HashLeaf(nil)
	for i := mapclient.MapTreeHeight - 1; i >= 0; i-- {
		values[i] = h.HashChildren(values[i+1], values[i+1])
	}
	return values
}()

func sparseLeaves(state map[string]storedEntry) []sparseLeaf {
	leaves := make([]sparseLeaf, 0, len(state))
	for k, e := range state {
		leaves = append(leaves, sparseLeaf{
			keyPath: common.NewKeyPath([]byte(k)),
			hash:    rfc6962.DefaultHasher.HashLeaf(e.data),
		})
	}
	return leaves
}

func split(leaves []sparseLeaf, depth int) (left, right []sparseLeaf) {
	for _, l := range leaves {
		if l.keyPath.Bit(depth) {
			right = append(right, l)
		} else {
			left = append(left, l)
		}
	}
	return
}

// sparseRoot returns the root of the subtree at depth containing leaves.
func sparseRoot(leaves []sparseLeaf, depth int) []byte {
	if len(leaves) == 0 {
		return emptySubtrees[depth]
	}
	if depth == mapclient.MapTreeHeight {
		return leaves[0].hash
	}
	left, right := split(leaves, depth)
	return rfc6962.DefaultHasher.HashChildren(sparseRoot(left, depth+1), sparseRoot(right, depth+1))
}

// auditPath returns the siblings of keyPath that are not empty subtrees.
func auditPath(leaves []sparseLeaf, keyPath common.KeyPath) mapclient.AuditPath {
	var path mapclient.AuditPath
	for depth := 0; depth < mapclient.MapTreeHeight && len(leaves) > 0; depth++ {
		left, right := split(leaves, depth)
		same, other := left, right
		if keyPath.Bit(depth) {
			same, other = right, left
		}
		if len(other) > 0 {
			path[depth] = sparseRoot(other, depth+1)
		}
		leaves = same
	}
	return path
}

// largestPowerOfTwoBelow returns the largest power of two smaller than n, for n > 1.
func largestPowerOfTwoBelow(n int) int {
	k := 1
	for k<<1 < n {
		k <<= 1
	}
	return k
}

// logRoot is the RFC 6962 Merkle tree hash of the leaf hashes.
func logRoot(leaves [][]byte) []byte {
	switch len(leaves) {
	case 0:
		return common.SHA256Hash()
	case 1:
		return leaves[0]
	}
	k := largestPowerOfTwoBelow(len(leaves))
	return rfc6962.DefaultHasher.HashChildren(logRoot(leaves[:k]), logRoot(leaves[k:]))
}

// inclusionProof is the RFC 6962 audit path of leaf m.
func inclusionProof(m int, leaves [][]byte) [][]byte {
	if len(leaves) <= 1 {
		return [][]byte{}
	}
	k := largestPowerOfTwoBelow(len(leaves))
	if m < k {
		return append(inclusionProof(m, leaves[:k]), logRoot(leaves[k:]))
	}
	return append(inclusionProof(m-k, leaves[k:]), logRoot(leaves[:k]))
}

// consistencyProof is the RFC 6962 SUBPROOF(m, leaves, b).
func consistencyProof(m int, leaves [][]byte, b bool) [][]byte {
	n := len(leaves)
	if m == n {
		if b {
			return [][]byte{}
		}
		return [][]byte{logRoot(leaves)}
	}
	k := largestPowerOfTwoBelow(n)
	if m <= k {
		return append(consistencyProof(m, leaves[:k], b), logRoot(leaves[k:]))
	}
	return append(consistencyProof(m-k, leaves[k:], false), logRoot(leaves[:k]))
}
