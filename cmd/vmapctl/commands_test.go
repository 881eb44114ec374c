package main

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netsec-ethz/vmapclient/pkg/mapclient"
	"github.com/netsec-ethz/vmapclient/pkg/prover"
	"github.com/netsec-ethz/vmapclient/pkg/tests/stubmap"
)

func newTestClient(t *testing.T, opts options) (*stubmap.Server, *client, *bytes.Buffer) {
	server := stubmap.New()
	server.ApplyOnRead = true
	m := mapclient.NewVerifiableMap(server, "testmap",
		mapclient.WithSleep(func(context.Context, time.Duration) error { return nil }))
	out := &bytes.Buffer{}
	return server, newClient(m, out, opts), out
}

func TestCommands(t *testing.T) {
	ctx := context.Background()
	_, c, out := newTestClient(t, options{size: mapclient.Head, wait: true})

	require.NoError(t, runCommand(ctx, c, "create", nil))
	require.Equal(t, "created /map/testmap\n", out.String())

	out.Reset()
	require.NoError(t, runCommand(ctx, c, "set", []string{"foo", "bar"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "leaf hash "))
	require.True(t, strings.HasPrefix(lines[1], "size 1 map root "))

	out.Reset()
	require.NoError(t, runCommand(ctx, c, "get", []string{"foo"}))
	require.Equal(t, "bar", out.String())

	out.Reset()
	require.NoError(t, runCommand(ctx, c, "verify", []string{"foo"}))
	require.Equal(t, "verified 666f6f at size 1\n", out.String())

	out.Reset()
	require.NoError(t, runCommand(ctx, c, "verify", []string{"nothing"}))
	require.Equal(t, "verified absence of 6e6f7468696e67 at size 1\n", out.String())

	require.NoError(t, runCommand(ctx, c, "set", []string{"fiz", "buz"}))
	require.NoError(t, runCommand(ctx, c, "delete", []string{"foo"}))

	out.Reset()
	require.NoError(t, runCommand(ctx, c, "head", nil))
	require.True(t, strings.HasPrefix(out.String(), "size 3 "))

	out.Reset()
	require.NoError(t, runCommand(ctx, c, "wait", []string{"3"}))
	require.True(t, strings.HasPrefix(out.String(), "size 3 "))

	out.Reset()
	require.NoError(t, runCommand(ctx, c, "consistency", []string{"1", "3"}))
	require.Equal(t, "mutation log at 1 is consistent with 3\n", out.String())
}

func TestCommandsOptions(t *testing.T) {
	ctx := context.Background()
	server, c, out := newTestClient(t, options{
		size:    mapclient.Exact(1),
		format:  mapclient.JSONFormat,
		hexKeys: true,
	})
	require.NoError(t, runCommand(ctx, c, "create", nil))
	require.NoError(t, runCommand(ctx, c, "set", []string{"00ff", `{"a": 1}`}))
	require.Equal(t, 1, server.Apply("testmap", 1))
	calls := server.Calls()
	require.Equal(t, "/map/testmap/key/h/00ff/xjson", calls[len(calls)-1].Path)

	out.Reset()
	require.NoError(t, runCommand(ctx, c, "get", []string{"00ff"}))
	require.Equal(t, `{"a":1}`, out.String())
	calls = server.Calls()
	require.Equal(t, "/map/testmap/tree/1/key/h/00ff/xjson", calls[len(calls)-1].Path)

	err := runCommand(ctx, c, "get", []string{"zz"})
	require.ErrorContains(t, err, "not hex")
	err = runCommand(ctx, c, "set", []string{"00", "{"})
	require.ErrorIs(t, err, mapclient.ErrEntryFormat)
	// JSON values cannot be verified locally.
	err = runCommand(ctx, c, "verify", []string{"00ff"})
	require.ErrorIs(t, err, mapclient.ErrLeafHashUnsupported)
}

func TestCommandErrors(t *testing.T) {
	ctx := context.Background()
	_, c, _ := newTestClient(t, options{size: mapclient.Head})

	require.ErrorContains(t, runCommand(ctx, c, "frobnicate", nil), "unknown command")
	require.ErrorContains(t, runCommand(ctx, c, "get", nil), "usage: get key")
	require.ErrorContains(t, runCommand(ctx, c, "wait", []string{"-1"}), "invalid size")
	require.ErrorIs(t, runCommand(ctx, c, "head", nil), mapclient.ErrNotFound)

	require.NoError(t, runCommand(ctx, c, "create", nil))
	require.ErrorIs(t, runCommand(ctx, c, "create", nil), mapclient.ErrObjectConflict)
	require.ErrorIs(t, runCommand(ctx, c, "consistency", []string{"2", "1"}),
		mapclient.ErrInvalidRange)
}

func TestVerifyEmptyMap(t *testing.T) {
	ctx := context.Background()
	server, c, out := newTestClient(t, options{size: mapclient.Head})
	server.ApplyOnRead = false

	require.NoError(t, runCommand(ctx, c, "create", nil))
	// Pending, but not in the map yet.
	require.NoError(t, runCommand(ctx, c, "set", []string{"foo", "bar"}))
	before := len(server.Calls())

	out.Reset()
	require.NoError(t, runCommand(ctx, c, "verify", []string{"foo"}))
	require.Equal(t, "verified absence of 666f6f in the empty map\n", out.String())
	// Only the head was requested.
	require.Len(t, server.Calls(), before+1)
	require.Equal(t, "/map/testmap/tree/0", server.Calls()[before].Path)
}

func TestVerifyEmptyMapWrongRoot(t *testing.T) {
	m := mapclient.NewVerifiableMap(mapclient.Transport(headOnly(`{"map_hash":"AAEC",`+
		`"mutation_log":{"tree_size":0,"tree_hash":""}}`)), "testmap")
	c := newClient(m, &bytes.Buffer{}, options{size: mapclient.Head})
	err := runCommand(context.Background(), c, "verify", []string{"foo"})
	require.ErrorIs(t, err, prover.ErrVerificationFailed)
}

// headOnly answers every request with the same map tree head.
type headOnly string

func (h headOnly) Request(context.Context, string, string, []byte) (*mapclient.Response, error) {
	return &mapclient.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(h)}, nil
}
