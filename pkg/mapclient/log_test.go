package mapclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/transparency-dev/merkle/rfc6962"

	"github.com/netsec-ethz/vmapclient/pkg/mapclient"
)

// scriptedLog serves the mutation log of map "m": heads[i] is the answer to the i-th head
// request, and inclusion answers every inclusion proof request.
func scriptedLog(t *testing.T, heads []mapclient.LogTreeHead,
	inclusion func(size string) *mapclient.Response) (transportFunc, *int) {

	headCalls, inclusionCalls := 0, 0
	return func(_ context.Context, method, path string, _ []byte) (*mapclient.Response, error) {
		require.Equal(t, http.MethodGet, method)
		const prefix = "/map/m/log/mutation/tree/"
		require.True(t, strings.HasPrefix(path, prefix), path)
		rest := strings.Split(strings.TrimPrefix(path, prefix), "/")
		if len(rest) == 1 {
			require.Less(t, headCalls, len(heads), "polled past the end of the script")
			data, err := json.Marshal(heads[headCalls])
			require.NoError(t, err)
			headCalls++
			return &mapclient.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: data}, nil
		}
		require.Equal(t, "inclusion", rest[1])
		inclusionCalls++
		return inclusion(rest[0]), nil
	}, &inclusionCalls
}

func jsonBody(t *testing.T, obj any) *mapclient.Response {
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return &mapclient.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: data}
}

func TestBlockUntilPresent(t *testing.T) {
	h := rfc6962.DefaultHasher
	la, lb := h.HashLeaf([]byte("a")), h.HashLeaf([]byte("b"))
	heads := []mapclient.LogTreeHead{
		{TreeSize: 1, RootHash: la},
		{TreeSize: 1, RootHash: la},
		{TreeSize: 2, RootHash: h.HashChildren(la, lb)},
	}
	transport, inclusionCalls := scriptedLog(t, heads, func(size string) *mapclient.Response {
		if size == "1" {
			return &mapclient.Response{StatusCode: http.StatusNotFound, Header: http.Header{}}
		}
		return jsonBody(t, map[string]any{"leaf_index": 1, "tree_size": 2, "proof": [][]byte{la}})
	})
	var sleeps []time.Duration
	m := mapclient.NewVerifiableMap(transport, "m", mapclient.WithSleep(
		func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		}))

	head, err := m.MutationLog().BlockUntilPresent(context.Background(), lb)
	require.NoError(t, err)
	require.Equal(t, heads[2], *head)
	require.Equal(t, 2, *inclusionCalls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
}

func TestBlockUntilPresentAborts(t *testing.T) {
	la := rfc6962.DefaultHasher.HashLeaf([]byte("a"))
	heads := []mapclient.LogTreeHead{{TreeSize: 1, RootHash: la}, {TreeSize: 2, RootHash: la}}
	cases := map[string]struct {
		inclusion *mapclient.Response
		expected  error
	}{
		"not_json": {
			inclusion: &mapclient.Response{StatusCode: http.StatusOK, Header: http.Header{},
				Body: []byte("<html>garbage")},
			expected: mapclient.ErrInternal,
		},
		"unauthorized": {
			inclusion: &mapclient.Response{StatusCode: http.StatusForbidden, Header: http.Header{}},
			expected:  mapclient.ErrUnauthorized,
		},
		"server_error": {
			inclusion: &mapclient.Response{StatusCode: http.StatusBadGateway, Header: http.Header{}},
			expected:  mapclient.ErrInternal,
		},
	}
	for name, tc := range cases {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			transport, inclusionCalls := scriptedLog(t, heads,
				func(string) *mapclient.Response { return tc.inclusion })
			m := mapclient.NewVerifiableMap(transport, "m", mapclient.WithSleep(noSleep))
			_, err := m.MutationLog().BlockUntilPresent(context.Background(), la)
			require.ErrorIs(t, err, tc.expected)
			require.Equal(t, 1, *inclusionCalls)
		})
	}
}

func TestBlockUntilPresentNilSleep(t *testing.T) {
	heads := []mapclient.LogTreeHead{{TreeSize: 1, RootHash: []byte{1}}}
	transport, _ := scriptedLog(t, heads, func(string) *mapclient.Response {
		return &mapclient.Response{StatusCode: http.StatusBadRequest, Header: http.Header{}}
	})
	m := mapclient.NewVerifiableMap(transport, "m", mapclient.WithSleep(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.MutationLog().BlockUntilPresent(ctx, []byte{2})
	require.ErrorIs(t, err, mapclient.ErrInterrupted)
}

func TestLogMalformedBodies(t *testing.T) {
	ctx := context.Background()
	log := mapclient.NewVerifiableMap(respondWith(http.StatusOK, "<html>garbage"), "m").
		MutationLog()
	require.Equal(t, "/map/m/log/mutation", log.Path())

	_, err := log.ConsistencyProof(ctx, 1, 2)
	require.ErrorIs(t, err, mapclient.ErrInternal)
	require.ErrorContains(t, err, "/map/m/log/mutation/tree/2/consistency/1")
	_, err = log.InclusionProof(ctx, mapclient.Head, []byte{1})
	require.ErrorIs(t, err, mapclient.ErrInternal)
	_, err = log.TreeHead(ctx, mapclient.Head)
	require.ErrorIs(t, err, mapclient.ErrInternal)

	_, err = log.ConsistencyProof(ctx, 2, 2)
	require.ErrorIs(t, err, mapclient.ErrInvalidRange)
}
