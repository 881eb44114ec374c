package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLruCache(t *testing.T) {
	c := NewLruCache[int64, string](2)
	c.Add(1, "one")
	c.Add(2, "two")
	v, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, "one", v)

	// 2 is now the least recently used, and is evicted.
	c.Add(3, "three")
	_, ok = c.Get(2)
	require.False(t, ok)
	v, ok = c.Get(3)
	require.True(t, ok)
	require.Equal(t, "three", v)
}

func TestNoCache(t *testing.T) {
	c := NewLruCache[int64, string](0)
	require.IsType(t, NoCache[int64, string]{}, c)
	c.Add(1, "one")
	_, ok := c.Get(1)
	require.False(t, ok)
}
