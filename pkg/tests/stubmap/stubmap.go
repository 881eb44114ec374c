// Package stubmap is an in-memory verifiable map service, to be used as a mapclient.Transport
// in tests. It computes real sparse Merkle audit paths and RFC 6962 log proofs.
package stubmap

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/transparency-dev/merkle/rfc6962"
	"go.uber.org/atomic"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/netsec-ethz/vmapclient/pkg/common"
	"github.com/netsec-ethz/vmapclient/pkg/mapclient"
)

// Call is one request received by the server.
type Call struct {
	Method string
	Path   string
	Body   []byte
}

// Server implements mapclient.Transport. The mutation log sequences writes immediately,
// but the map only applies them when Apply is called, or when its head is read if
// ApplyOnRead is set.
type Server struct {
	// ApplyOnRead applies one pending mutation each time a map head is requested.
	ApplyOnRead bool
	// ProofValuesPerHeader is the number of audit path entries per X-Verified-Proof value.
	ProofValuesPerHeader int

	Requests atomic.Int64

	mu    sync.Mutex
	maps  map[string]*stubMap
	calls []Call
}

var _ mapclient.Transport = (*Server)(nil)

func New() *Server {
	return &Server{
		ProofValuesPerHeader: 4,
		maps:                 make(map[string]*stubMap),
	}
}

type storedEntry struct {
	data   []byte
	suffix string
}

type mutation struct {
	Action string `json:"action"`
	Key    []byte `json:"key"`
	Value  []byte `json:"value,omitempty"`
}

type stubMap struct {
	mutations []mutation
	leaves    [][]byte // Leaf hashes of the mutation log.
	// states[i] is the content of the map after applying i mutations.
	states []map[string]storedEntry
	// pending entries of each mutation, in the same order as mutations.
	pending []storedEntry
}

func (m *stubMap) applied() int {
	return len(m.states) - 1
}

func (m *stubMap) apply() bool {
	i := m.applied()
	if i >= len(m.mutations) {
		return false
	}
	next := maps.Clone(m.states[i])
	mut := m.mutations[i]
	if mut.Action == "delete" {
		delete(next, string(mut.Key))
	} else {
		next[string(mut.Key)] = m.pending[i]
	}
	m.states = append(m.states, next)
	return true
}

// Calls returns a copy of all requests received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Apply applies up to n pending mutations to the named map, and returns its new size.
func (s *Server) Apply(name string, n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.maps[name]
	if !ok {
		return 0
	}
	for i := 0; i < n && m.apply(); i++ {
	}
	return m.applied()
}

// Keys returns the hex encoded keys present in the named map at its current size, sorted.
func (s *Server) Keys(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.maps[name]
	if !ok {
		return nil
	}
	keys := maps.Keys(m.states[m.applied()])
	for i, k := range keys {
		keys[i] = hex.EncodeToString([]byte(k))
	}
	slices.Sort(keys)
	return keys
}

func (s *Server) Request(ctx context.Context, method, path string, body []byte,
) (*mapclient.Response, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.Requests.Inc()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: method, Path: path, Body: slices.Clone(body)})

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) < 2 || segments[0] != "map" {
		return status(http.StatusNotFound), nil
	}
	name, rest := segments[1], segments[2:]
	if len(rest) == 0 {
		if method != http.MethodPut {
			return status(http.StatusBadRequest), nil
		}
		if _, ok := s.maps[name]; ok {
			return status(http.StatusConflict), nil
		}
		s.maps[name] = &stubMap{states: []map[string]storedEntry{{}}}
		return status(http.StatusOK), nil
	}
	m, ok := s.maps[name]
	if !ok {
		return status(http.StatusNotFound), nil
	}

	switch {
	case rest[0] == "key" && len(rest) >= 3 && rest[1] == "h":
		return s.write(m, method, rest[2], strings.Join(rest[3:], "/"), body), nil
	case rest[0] == "tree" && len(rest) >= 2 && method == http.MethodGet:
		size, ok := m.resolveSize(rest[1], m.applied(), s.ApplyOnRead && len(rest) == 2)
		if !ok {
			return status(http.StatusBadRequest), nil
		}
		if len(rest) == 2 {
			return jsonResponse(m.treeHead(size)), nil
		}
		if len(rest) >= 5 && rest[2] == "key" && rest[3] == "h" {
			return s.get(m, size, rest[4]), nil
		}
	case rest[0] == "log" && len(rest) >= 4 && rest[1] == "mutation" && rest[2] == "tree":
		return m.logRequest(rest[3:]), nil
	}
	return status(http.StatusNotFound), nil
}

// resolveSize parses the size in the path. 0 is the latest size.
func (m *stubMap) resolveSize(s string, max int, applyOnRead bool) (int, bool) {
	size, err := strconv.Atoi(s)
	if err != nil || size < 0 {
		return 0, false
	}
	if size == 0 {
		if applyOnRead {
			m.apply()
		}
		return m.applied(), true
	}
	return size, size <= max
}

func (s *Server) write(m *stubMap, method, hexKey, suffix string, body []byte) *mapclient.Response {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return status(http.StatusBadRequest)
	}
	var mut mutation
	var entry storedEntry
	switch {
	case method == http.MethodPut:
		switch suffix {
		case "":
		case "xjson", "xjson/redactable":
			if !json.Valid(body) {
				return status(http.StatusBadRequest)
			}
		default:
			return status(http.StatusNotFound)
		}
		mut = mutation{Action: "set", Key: key, Value: body}
		entry = storedEntry{data: slices.Clone(body), suffix: suffix}
	case method == http.MethodDelete && suffix == "":
		mut = mutation{Action: "delete", Key: key}
	default:
		return status(http.StatusBadRequest)
	}

	leafInput, err := json.Marshal(mut)
	if err != nil {
		return status(http.StatusInternalServerError)
	}
	leafHash := rfc6962.DefaultHasher.HashLeaf(leafInput)
	m.mutations = append(m.mutations, mut)
	m.pending = append(m.pending, entry)
	m.leaves = append(m.leaves, leafHash)
	return jsonResponse(map[string]any{"leaf_hash": leafHash})
}

func (s *Server) get(m *stubMap, size int, hexKey string) *mapclient.Response {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return status(http.StatusBadRequest)
	}
	state := m.states[size]
	path := auditPath(sparseLeaves(state), common.NewKeyPath(key))

	var values []string
	var chunk []string
	for _, h := range path.Heights() {
		chunk = append(chunk, fmt.Sprintf("%d/%s", h, hex.EncodeToString(path[h])))
		if len(chunk) == s.ProofValuesPerHeader {
			values = append(values, strings.Join(chunk, ","))
			chunk = nil
		}
	}
	if len(chunk) > 0 {
		values = append(values, strings.Join(chunk, ","))
	}
	header := make(http.Header)
	// Not canonicalized on purpose.
	header["x-verified-proof"] = values
	header.Set("X-Verified-TreeSize", strconv.Itoa(size))
	return &mapclient.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       slices.Clone(state[string(key)].data),
	}
}

func (m *stubMap) treeHead(size int) any {
	return map[string]any{
		"map_hash": sparseRoot(sparseLeaves(m.states[size]), 0),
		"mutation_log": map[string]any{
			"tree_size": size,
			"tree_hash": logRoot(m.leaves[:size]),
		},
	}
}

// logRequest serves the mutation log. rest starts after ".../log/mutation/tree/".
func (m *stubMap) logRequest(rest []string) *mapclient.Response {
	size, err := strconv.Atoi(rest[0])
	if err != nil || size < 0 || size > len(m.leaves) {
		return status(http.StatusBadRequest)
	}
	if size == 0 {
		size = len(m.leaves)
	}
	leaves := m.leaves[:size]
	switch {
	case len(rest) == 1:
		return jsonResponse(map[string]any{"tree_size": size, "tree_hash": logRoot(leaves)})
	case len(rest) == 4 && rest[1] == "inclusion" && rest[2] == "h":
		leafHash, err := hex.DecodeString(rest[3])
		if err != nil {
			return status(http.StatusBadRequest)
		}
		for i, l := range leaves {
			if string(l) == string(leafHash) {
				return jsonResponse(map[string]any{
					"leaf_index": i,
					"tree_size":  size,
					"proof":      inclusionProof(i, leaves),
				})
			}
		}
		return status(http.StatusBadRequest)
	case len(rest) == 3 && rest[1] == "consistency":
		first, err := strconv.Atoi(rest[2])
		if err != nil || first <= 0 || first >= size {
			return status(http.StatusBadRequest)
		}
		return jsonResponse(map[string]any{"proof": consistencyProof(first, leaves, true)})
	}
	return status(http.StatusNotFound)
}

func status(code int) *mapclient.Response {
	return &mapclient.Response{StatusCode: code, Header: make(http.Header)}
}

func jsonResponse(obj any) *mapclient.Response {
	data, err := json.Marshal(obj)
	if err != nil {
		return status(http.StatusInternalServerError)
	}
	return &mapclient.Response{StatusCode: http.StatusOK, Header: make(http.Header), Body: data}
}
