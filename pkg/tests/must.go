package tests

import (
	"encoding/base64"
	"encoding/hex"

	"github.com/stretchr/testify/require"
)

// MustDecodeHex decodes a hex digest, as carried in audit path headers, or fails the test.
func MustDecodeHex(t T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err, "hex %q", s)
	return b
}

// MustDecodeBase64 decodes a base64 field of a JSON response, such as leaf_hash or map_hash,
// or fails the test.
func MustDecodeBase64(t T, s string) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err, "base64 %q", s)
	return b
}
