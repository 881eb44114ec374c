package tests

import "github.com/stretchr/testify/require"

// T is the subset of *testing.T used by the helpers of this package.
type T interface {
	require.TestingT
	Helper()
	Name() string
}
