package mapclient

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	// MapTreeHeight is the number of levels of the sparse Merkle tree, one per key bit.
	MapTreeHeight = 256

	verifiedProofHeader    = "x-verified-proof"
	verifiedTreeSizeHeader = "x-verified-treesize"
)

// AuditPath holds one sibling hash per height of the sparse Merkle tree. A nil slot means
// the sibling at that height is the default (empty subtree) value.
type AuditPath [MapTreeHeight][]byte

// Heights returns the heights that carry a sibling hash, in increasing order.
func (p *AuditPath) Heights() []int {
	var heights []int
	for h, v := range p {
		if v != nil {
			heights = append(heights, h)
		}
	}
	return heights
}

// ParseAuditPath decodes every X-Verified-Proof header present in h into an audit path.
// The header name is compared case insensitively against every key, since the map may not
// hold canonicalized keys. Each header value is a comma separated list of "height/hexdigest".
// Entries with a number of fields other than two, or with a height outside [0,255], are
// skipped. A malformed digest is an error.
// If the same height appears more than once, the last one parsed is kept.
func ParseAuditPath(h http.Header) (AuditPath, error) {
	var path AuditPath
	for k, values := range h {
		if strings.ToLower(k) != verifiedProofHeader {
			continue
		}
		for _, v := range values {
			for _, entry := range strings.Split(v, ",") {
				bits := strings.Split(entry, "/")
				if len(bits) != 2 {
					continue
				}
				height, err := strconv.Atoi(strings.TrimSpace(bits[0]))
				if err != nil || height < 0 || height >= MapTreeHeight {
					continue
				}
				digest, err := hex.DecodeString(strings.TrimSpace(bits[1]))
				if err != nil {
					return AuditPath{}, fmt.Errorf("%w: audit path entry %q: %v",
						ErrInternal, entry, err)
				}
				path[height] = digest
			}
		}
	}
	return path, nil
}

// ParseVerifiedTreeSize returns the value of the X-Verified-TreeSize header, or -1 if it is
// absent or cannot be parsed. The first value found wins.
func ParseVerifiedTreeSize(h http.Header) int64 {
	for k, values := range h {
		if strings.ToLower(k) != verifiedTreeSizeHeader {
			continue
		}
		for _, v := range values {
			size, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil || size < 0 {
				return -1
			}
			return size
		}
	}
	return -1
}
