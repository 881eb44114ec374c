package mapclient

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/netsec-ethz/vmapclient/pkg/cache"
)

const defaultGetManyConcurrency = 8

// VerifiableMap is a handle to a map hosted by the service. Writes are asynchronous: they
// return once the mutation is queued in the mutation log, not once it is reflected in the map
// root hash. Use MutationLog().BlockUntilPresent and BlockUntilSize to wait for that.
type VerifiableMap struct {
	transport Transport
	path      string

	heads           cache.Cache[int64, *MapTreeHead]
	sleep           SleepFunc
	maxParallelGets int
}

// MapOption configures a VerifiableMap.
type MapOption func(*VerifiableMap)

// WithHeadCacheSize keeps the last n map tree heads fetched by exact size. They never change.
func WithHeadCacheSize(n int) MapOption {
	return func(m *VerifiableMap) {
		m.heads = cache.NewLruCache[int64, *MapTreeHead](n)
	}
}

// WithSleep replaces the function used to wait between polls. nil means SleepContext.
func WithSleep(sleep SleepFunc) MapOption {
	return func(m *VerifiableMap) {
		if sleep == nil {
			sleep = SleepContext
		}
		m.sleep = sleep
	}
}

// WithMaxParallelGets bounds the number of concurrent requests issued by GetMany.
func WithMaxParallelGets(n int) MapOption {
	return func(m *VerifiableMap) {
		m.maxParallelGets = n
	}
}

// NewVerifiableMap returns a handle to the map with the given name. It does not create it.
func NewVerifiableMap(t Transport, name string, opts ...MapOption) *VerifiableMap {
	m := &VerifiableMap{
		transport:       t,
		path:            "/map/" + name,
		heads:           cache.NoCache[int64, *MapTreeHead]{},
		sleep:           SleepContext,
		maxParallelGets: defaultGetManyConcurrency,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path is the path of the map relative to the account.
func (m *VerifiableMap) Path() string {
	return m.path
}

// MutationLog returns the log of mutations applied to the map. It is read only, and its
// entries are in JSON format.
func (m *VerifiableMap) MutationLog() *VerifiableLog {
	return newVerifiableLog(m.transport, m.path+"/log/mutation", m.sleep)
}

// TreeHeadLog returns the log of the map tree heads produced by the map. It is read only,
// and its entries are in JSON format.
func (m *VerifiableMap) TreeHeadLog() *VerifiableLog {
	return newVerifiableLog(m.transport, m.path+"/log/treehead", m.sleep)
}

// Create creates the map. A second call fails with ErrObjectConflict.
func (m *VerifiableMap) Create(ctx context.Context) error {
	_, err := doRequest(ctx, m.transport, "Create", http.MethodPut, m.path, nil)
	return err
}

// Get returns the value of key in the map of the given size, and its audit path.
func (m *VerifiableMap) Get(ctx context.Context, key []byte, size TreeSize, f Format,
) (*MapGetEntryResponse, error) {

	s, err := size.wire()
	if err != nil {
		return nil, fmt.Errorf("Get | %w", err)
	}
	path := m.path + "/tree/" + s + "/key/h/" + hex.EncodeToString(key) + f.readSuffix()
	resp, err := doRequest(ctx, m.transport, "Get", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	value, err := f.FromBytes(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("Get | %s | %w", path, err)
	}
	auditPath, err := ParseAuditPath(resp.Header)
	if err != nil {
		return nil, fmt.Errorf("Get | %s | %w", path, err)
	}
	return &MapGetEntryResponse{
		Key:       append([]byte(nil), key...),
		Value:     value,
		AuditPath: auditPath,
		TreeSize:  ParseVerifiedTreeSize(resp.Header),
	}, nil
}

// GetMany calls Get for each key concurrently. Responses are in the order of the keys.
// The first error cancels the remaining requests and is returned.
func (m *VerifiableMap) GetMany(ctx context.Context, keys [][]byte, size TreeSize, f Format,
) ([]*MapGetEntryResponse, error) {

	responses := make([]*MapGetEntryResponse, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	if m.maxParallelGets > 0 {
		g.SetLimit(m.maxParallelGets)
	}
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			resp, err := m.Get(ctx, key, size, f)
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

// Set writes entry as the value of key. It returns once the mutation is queued.
func (m *VerifiableMap) Set(ctx context.Context, key []byte, entry Entry,
) (*AddEntryResponse, error) {

	body, err := entry.UploadBody()
	if err != nil {
		return nil, fmt.Errorf("Set | UploadBody | %w", err)
	}
	path := m.path + "/key/h/" + hex.EncodeToString(key) + entry.Format().uploadSuffix()
	resp, err := doRequest(ctx, m.transport, "Set", http.MethodPut, path, body)
	if err != nil {
		return nil, err
	}
	aer, err := parseAddEntryResponse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("Set | %s | %w", path, err)
	}
	return aer, nil
}

// Delete removes key from the map. It returns once the mutation is queued.
func (m *VerifiableMap) Delete(ctx context.Context, key []byte) (*AddEntryResponse, error) {
	path := m.path + "/key/h/" + hex.EncodeToString(key)
	resp, err := doRequest(ctx, m.transport, "Delete", http.MethodDelete, path, nil)
	if err != nil {
		return nil, err
	}
	aer, err := parseAddEntryResponse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("Delete | %s | %w", path, err)
	}
	return aer, nil
}

// TreeHead returns the map tree head for the given size.
func (m *VerifiableMap) TreeHead(ctx context.Context, size TreeSize) (*MapTreeHead, error) {
	s, err := size.wire()
	if err != nil {
		return nil, fmt.Errorf("TreeHead | %w", err)
	}
	if !size.IsHead() {
		if head, ok := m.heads.Get(size.Size()); ok {
			return head.Clone(), nil
		}
	}
	path := m.path + "/tree/" + s
	resp, err := doRequest(ctx, m.transport, "TreeHead", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	head, err := parseMapTreeHead(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("TreeHead | %s | %w", path, err)
	}
	// The cache keeps its own copy: callers may modify the returned head.
	m.heads.Add(head.TreeSize(), head.Clone())
	return head, nil
}

// BlockUntilSize polls the head of the map until it reflects at least size mutations.
// Intended for tests and tooling: it does not time out on its own.
func (m *VerifiableMap) BlockUntilSize(ctx context.Context, size int64) (*MapTreeHead, error) {
	p := NewSizeConvergencePoller(m)
	p.Sleep = m.sleep
	return p.WaitForSize(ctx, size)
}

// doRequest sends the request and maps a non-OK status to an error. Transport errors are
// returned wrapped with the operation name only.
func doRequest(ctx context.Context, t Transport, op, method, path string, body []byte,
) (*Response, error) {

	resp, err := t.Request(ctx, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("%s | %w", op, err)
	}
	if err := statusError(op, method, path, resp.StatusCode); err != nil {
		return nil, err
	}
	return resp, nil
}
