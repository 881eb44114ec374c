package mapclient

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/trillian"
	"github.com/google/trillian/types"
	"golang.org/x/exp/slices"
)

// TreeSize selects the tree size a request is made against: either the latest one the
// server knows of (Head), or an exact one.
type TreeSize struct {
	size   int64
	latest bool
}

// Head selects the latest tree size known by the server.
var Head = TreeSize{latest: true}

// Exact selects a specific tree size.
func Exact(size int64) TreeSize {
	return TreeSize{size: size}
}

func (s TreeSize) IsHead() bool {
	return s.latest
}

// Size returns the exact size. It is meaningless for Head.
func (s TreeSize) Size() int64 {
	return s.size
}

func (s TreeSize) String() string {
	if s.latest {
		return "head"
	}
	return strconv.FormatInt(s.size, 10)
}

// wire returns the path component for this selector. The protocol reserves 0 for the head,
// thus Exact(0) has no representation and is refused.
func (s TreeSize) wire() (string, error) {
	if s.latest {
		return "0", nil
	}
	if s.size <= 0 {
		return "", fmt.Errorf("%w: tree size %d", ErrInvalidRange, s.size)
	}
	return strconv.FormatInt(s.size, 10), nil
}

// LogTreeHead is the root hash of an append only log at a given size.
type LogTreeHead struct {
	TreeSize int64  `json:"tree_size"`
	RootHash []byte `json:"tree_hash"`
}

// LogRoot returns the head as a trillian log root, as used by the log verifier.
func (h *LogTreeHead) LogRoot() *types.LogRootV1 {
	return &types.LogRootV1{
		TreeSize: uint64(h.TreeSize),
		RootHash: h.RootHash,
	}
}

// MapTreeHead is the root hash of the map, together with the head of the mutation log the
// map was computed from.
type MapTreeHead struct {
	RootHash            []byte      `json:"map_hash"`
	MutationLogTreeHead LogTreeHead `json:"mutation_log"`
}

// Clone returns a deep copy of the head.
func (h *MapTreeHead) Clone() *MapTreeHead {
	return &MapTreeHead{
		RootHash: slices.Clone(h.RootHash),
		MutationLogTreeHead: LogTreeHead{
			TreeSize: h.MutationLogTreeHead.TreeSize,
			RootHash: slices.Clone(h.MutationLogTreeHead.RootHash),
		},
	}
}

// TreeSize is the number of mutations reflected by the map root hash.
func (h *MapTreeHead) TreeSize() int64 {
	return h.MutationLogTreeHead.TreeSize
}

// MapGetEntryResponse is the value of one key and its audit path. It verifies nothing by
// itself: see the prover package.
type MapGetEntryResponse struct {
	Key       []byte
	Value     Entry
	AuditPath AuditPath
	// TreeSize is the size the proof was computed against, or -1 if the server did not say.
	TreeSize int64
}

// AddEntryResponse carries the leaf hash of the mutation log entry produced by a write.
type AddEntryResponse struct {
	LeafHash []byte `json:"leaf_hash"`
}

// LogInclusionProof proves that a leaf is included in a log of the given size.
type LogInclusionProof struct {
	LeafHash  []byte   `json:"-"`
	LeafIndex int64    `json:"leaf_index"`
	TreeSize  int64    `json:"tree_size"`
	AuditPath [][]byte `json:"proof"`
}

// Proof returns the proof in the form consumed by the log verifier.
func (p *LogInclusionProof) Proof() *trillian.Proof {
	return &trillian.Proof{
		LeafIndex: p.LeafIndex,
		Hashes:    p.AuditPath,
	}
}

// LogConsistencyProof proves that the log at SecondSize is an append only extension of the
// log at FirstSize.
type LogConsistencyProof struct {
	FirstSize  int64    `json:"-"`
	SecondSize int64    `json:"-"`
	AuditPath  [][]byte `json:"proof"`
}

func parseAddEntryResponse(body []byte) (*AddEntryResponse, error) {
	resp := &AddEntryResponse{}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, fmt.Errorf("%w: add entry response: %v", ErrInternal, err)
	}
	if resp.LeafHash == nil {
		return nil, fmt.Errorf("%w: add entry response without leaf_hash", ErrInternal)
	}
	return resp, nil
}

func parseLogTreeHead(body []byte) (*LogTreeHead, error) {
	head := &LogTreeHead{}
	if err := json.Unmarshal(body, head); err != nil {
		return nil, fmt.Errorf("%w: log tree head: %v", ErrInternal, err)
	}
	if head.TreeSize < 0 {
		return nil, fmt.Errorf("%w: negative log tree size %d", ErrInternal, head.TreeSize)
	}
	return head, nil
}

func parseMapTreeHead(body []byte) (*MapTreeHead, error) {
	// Decode into pointers to tell missing fields apart.
	var raw struct {
		RootHash    []byte       `json:"map_hash"`
		MutationLog *LogTreeHead `json:"mutation_log"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: map tree head: %v", ErrInternal, err)
	}
	if raw.RootHash == nil || raw.MutationLog == nil {
		return nil, fmt.Errorf("%w: map tree head without map_hash or mutation_log",
			ErrInternal)
	}
	if raw.MutationLog.TreeSize < 0 {
		return nil, fmt.Errorf("%w: negative map tree size %d",
			ErrInternal, raw.MutationLog.TreeSize)
	}
	return &MapTreeHead{
		RootHash:            raw.RootHash,
		MutationLogTreeHead: *raw.MutationLog,
	}, nil
}
