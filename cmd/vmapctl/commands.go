package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/golang/glog"

	"github.com/netsec-ethz/vmapclient/pkg/mapclient"
	"github.com/netsec-ethz/vmapclient/pkg/prover"
)

type options struct {
	size    mapclient.TreeSize
	format  mapclient.Format
	wait    bool
	hexKeys bool
}

type client struct {
	m    *mapclient.VerifiableMap
	out  io.Writer
	opts options
}

func newClient(m *mapclient.VerifiableMap, out io.Writer, opts options) *client {
	return &client{
		m:    m,
		out:  out,
		opts: opts,
	}
}

type command struct {
	name  string
	args  string
	nargs int
	help  string
	run   func(c *client, ctx context.Context, args []string) error
}

var commands = []command{
	{"create", "", 0, "Create the map", (*client).create},
	{"get", "key", 1, "Print the value of key", (*client).get},
	{"set", "key value", 2, "Set the value of key", (*client).set},
	{"delete", "key", 1, "Delete key", (*client).delete},
	{"head", "", 0, "Print the map tree head", (*client).head},
	{"wait", "size", 1, "Wait until the map reflects size mutations", (*client).waitForSize},
	{"verify", "key", 1, "Get key and verify it against the map tree head", (*client).verify},
	{"consistency", "first second", 2,
		"Verify that the mutation log at first is a prefix of the one at second",
		(*client).consistency},
}

func runCommand(ctx context.Context, c *client, name string, args []string) error {
	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}
		if len(args) != cmd.nargs {
			return fmt.Errorf("usage: %s %s", cmd.name, cmd.args)
		}
		return cmd.run(c, ctx, args)
	}
	return fmt.Errorf("unknown command %q", name)
}

func (c *client) key(arg string) ([]byte, error) {
	if !c.opts.hexKeys {
		return []byte(arg), nil
	}
	key, err := hex.DecodeString(arg)
	if err != nil {
		return nil, fmt.Errorf("key %q is not hex: %w", arg, err)
	}
	return key, nil
}

func (c *client) create(ctx context.Context, _ []string) error {
	if err := c.m.Create(ctx); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "created %s\n", c.m.Path())
	return nil
}

func (c *client) get(ctx context.Context, args []string) error {
	key, err := c.key(args[0])
	if err != nil {
		return err
	}
	resp, err := c.m.Get(ctx, key, c.opts.size, c.opts.format)
	if err != nil {
		return err
	}
	glog.Infof("%x at size %d, %d audit path entries", key, resp.TreeSize,
		len(resp.AuditPath.Heights()))
	_, err = c.out.Write(resp.Value.Data())
	return err
}

func (c *client) set(ctx context.Context, args []string) error {
	key, err := c.key(args[0])
	if err != nil {
		return err
	}
	var entry mapclient.Entry
	switch c.opts.format {
	case mapclient.JSONFormat:
		entry, err = mapclient.NewJSONEntry([]byte(args[1]))
	case mapclient.RedactableJSONFormat:
		entry, err = mapclient.NewRedactableJSONEntry([]byte(args[1]))
	default:
		entry = mapclient.NewRawEntry([]byte(args[1]))
	}
	if err != nil {
		return err
	}
	aer, err := c.m.Set(ctx, key, entry)
	if err != nil {
		return err
	}
	return c.mutated(ctx, aer)
}

func (c *client) delete(ctx context.Context, args []string) error {
	key, err := c.key(args[0])
	if err != nil {
		return err
	}
	aer, err := c.m.Delete(ctx, key)
	if err != nil {
		return err
	}
	return c.mutated(ctx, aer)
}

// mutated prints the leaf hash of the mutation and, if asked, waits for the map to reflect it.
func (c *client) mutated(ctx context.Context, aer *mapclient.AddEntryResponse) error {
	fmt.Fprintf(c.out, "leaf hash %x\n", aer.LeafHash)
	if !c.opts.wait {
		return nil
	}
	lth, err := c.m.MutationLog().BlockUntilPresent(ctx, aer.LeafHash)
	if err != nil {
		return err
	}
	head, err := c.m.BlockUntilSize(ctx, lth.TreeSize)
	if err != nil {
		return err
	}
	c.printHead(head)
	return nil
}

func (c *client) head(ctx context.Context, _ []string) error {
	head, err := c.m.TreeHead(ctx, c.opts.size)
	if err != nil {
		return err
	}
	c.printHead(head)
	return nil
}

func (c *client) waitForSize(ctx context.Context, args []string) error {
	size, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || size < 0 {
		return fmt.Errorf("invalid size %q", args[0])
	}
	head, err := c.m.BlockUntilSize(ctx, size)
	if err != nil {
		return err
	}
	c.printHead(head)
	return nil
}

func (c *client) verify(ctx context.Context, args []string) error {
	key, err := c.key(args[0])
	if err != nil {
		return err
	}
	head, err := c.m.TreeHead(ctx, c.opts.size)
	if err != nil {
		return err
	}
	if head.TreeSize() == 0 {
		// Exact(0) cannot be requested: an empty map must have the empty root.
		if !bytes.Equal(head.RootHash, prover.EmptyMapRoot()) {
			return fmt.Errorf("%w: empty map with root %x", prover.ErrVerificationFailed,
				head.RootHash)
		}
		fmt.Fprintf(c.out, "verified absence of %x in the empty map\n", key)
		return nil
	}
	resp, err := c.m.Get(ctx, key, mapclient.Exact(head.TreeSize()), c.opts.format)
	if err != nil {
		return err
	}
	if err := prover.VerifyMapInclusion(head, resp); err != nil {
		return err
	}
	if resp.Value.IsEmpty() {
		fmt.Fprintf(c.out, "verified absence of %x at size %d\n", key, head.TreeSize())
	} else {
		fmt.Fprintf(c.out, "verified %x at size %d\n", key, head.TreeSize())
	}
	return nil
}

func (c *client) consistency(ctx context.Context, args []string) error {
	var sizes [2]int64
	for i, arg := range args {
		s, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid size %q", arg)
		}
		sizes[i] = s
	}
	log := c.m.MutationLog()
	proof, err := log.ConsistencyProof(ctx, sizes[0], sizes[1])
	if err != nil {
		return err
	}
	older, err := log.TreeHead(ctx, mapclient.Exact(sizes[0]))
	if err != nil {
		return err
	}
	newer, err := log.TreeHead(ctx, mapclient.Exact(sizes[1]))
	if err != nil {
		return err
	}
	if err := log.VerifyConsistency(older, newer, proof); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "mutation log at %d is consistent with %d\n",
		older.TreeSize, newer.TreeSize)
	return nil
}

func (c *client) printHead(head *mapclient.MapTreeHead) {
	fmt.Fprintf(c.out, "size %d map root %x mutation log root %x\n",
		head.TreeSize(), head.RootHash, head.MutationLogTreeHead.RootHash)
}
