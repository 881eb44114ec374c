package mapclient_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netsec-ethz/vmapclient/pkg/mapclient"
	"github.com/netsec-ethz/vmapclient/pkg/tests"
)

func TestParseAuditPath(t *testing.T) {
	cases := map[string]struct {
		header   http.Header
		expected map[int]string // height -> hex digest
	}{
		"out_of_range_height": {
			header:   http.Header{"X-Verified-Proof": {"3/ab,260/ff"}},
			expected: map[int]string{3: "ab"},
		},
		"no_header": {
			header:   http.Header{"Content-Type": {"application/json"}},
			expected: map[int]string{},
		},
		"lowercase_key": {
			header:   http.Header{"x-verified-proof": {"0/00,255/ff"}},
			expected: map[int]string{0: "00", 255: "ff"},
		},
		"several_keys_and_values": {
			header: http.Header{
				"X-VERIFIED-PROOF": {"1/01", "2/02,3/03"},
				"x-Verified-proof": {"4/04"},
			},
			expected: map[int]string{1: "01", 2: "02", 3: "03", 4: "04"},
		},
		"whitespace": {
			header:   http.Header{"X-Verified-Proof": {" 5 / CD , 6/ef "}},
			expected: map[int]string{5: "cd", 6: "ef"},
		},
		"ignored_entries": {
			header: http.Header{"X-Verified-Proof": {
				"1/2/3,abc,x/ab,-1/ab,256/ab,,7/77",
			}},
			expected: map[int]string{7: "77"},
		},
		"duplicate_height_last_wins": {
			header:   http.Header{"X-Verified-Proof": {"4/aa,4/bb"}},
			expected: map[int]string{4: "bb"},
		},
	}
	for name, tc := range cases {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path, err := mapclient.ParseAuditPath(tc.header)
			require.NoError(t, err)
			require.Len(t, path, mapclient.MapTreeHeight)
			for h := 0; h < mapclient.MapTreeHeight; h++ {
				if digest, ok := tc.expected[h]; ok {
					require.Equal(t, tests.MustDecodeHex(t, digest), path[h], "height %d", h)
				} else {
					require.Nil(t, path[h], "height %d", h)
				}
			}
			require.Len(t, path.Heights(), len(tc.expected))
		})
	}
}

func TestParseAuditPathMalformedHex(t *testing.T) {
	for _, v := range []string{"3/abc", "3/zz", "1/00,2/0g"} {
		_, err := mapclient.ParseAuditPath(http.Header{"X-Verified-Proof": {v}})
		require.ErrorIs(t, err, mapclient.ErrInternal, "value %q", v)
	}
}

// TestParseAuditPathOrder checks that the order of repeated header values does not matter.
func TestParseAuditPathOrder(t *testing.T) {
	values := []string{"1/01,9/09", "200/c8", "17/11,18/12,19/13"}
	expected, err := mapclient.ParseAuditPath(http.Header{"X-Verified-Proof": values})
	require.NoError(t, err)
	permutations := [][]string{
		{values[2], values[1], values[0]},
		{values[1], values[0], values[2]},
		{values[0], values[2], values[1]},
	}
	for _, p := range permutations {
		got, err := mapclient.ParseAuditPath(http.Header{"X-Verified-Proof": p})
		require.NoError(t, err)
		require.Equal(t, expected, got)
	}
	require.Equal(t, []int{1, 9, 17, 18, 19, 200}, expected.Heights())
}

func TestParseVerifiedTreeSize(t *testing.T) {
	cases := map[string]struct {
		header   http.Header
		expected int64
	}{
		"absent": {
			header:   http.Header{},
			expected: -1,
		},
		"canonical": {
			header:   http.Header{"X-Verified-Treesize": {"42"}},
			expected: 42,
		},
		"lowercase": {
			header:   http.Header{"x-verified-treesize": {"7"}},
			expected: 7,
		},
		"first_value_wins": {
			header:   http.Header{"X-VERIFIED-TREESIZE": {"3", "5"}},
			expected: 3,
		},
		"unparseable": {
			header:   http.Header{"X-Verified-TreeSize": {"abc"}},
			expected: -1,
		},
		"zero": {
			header:   http.Header{"X-Verified-TreeSize": {"0"}},
			expected: 0,
		},
	}
	for name, tc := range cases {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, mapclient.ParseVerifiedTreeSize(tc.header))
		})
	}
}
