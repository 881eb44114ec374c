package util

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]struct {
		text     string
		expected time.Duration
		err      bool
	}{
		"seconds": {
			text:     "30s",
			expected: 30 * time.Second,
		},
		"composite": {
			text:     "1m30s",
			expected: 90 * time.Second,
		},
		"days": {
			text:     "2d",
			expected: 48 * time.Hour,
		},
		"spaces": {
			text:     " 5ms ",
			expected: 5 * time.Millisecond,
		},
		"fractional_days": {
			text: "1.5d",
			err:  true,
		},
		"no_unit": {
			text: "10",
			err:  true,
		},
		"empty": {
			text: "",
			err:  true,
		},
	}
	for name, tc := range cases {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDuration(tc.text)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, got)

			again, err := ParseDuration(FmtDuration(got))
			require.NoError(t, err)
			require.Equal(t, got, again)
		})
	}
}

func TestDurationWrapJson(t *testing.T) {
	type config struct {
		Timeout DurationWrap
	}
	c := config{Timeout: DurationWrap{Duration: 24 * time.Hour}}
	data, err := json.Marshal(c)
	require.NoError(t, err)
	require.JSONEq(t, `{"Timeout":"1d"}`, string(data))

	copy := config{}
	err = json.Unmarshal([]byte(`{"Timeout":"1m"}`), &copy)
	require.NoError(t, err)
	require.Equal(t, time.Minute, copy.Timeout.Duration)

	err = json.Unmarshal([]byte(`{"Timeout":"soon"}`), &copy)
	require.Error(t, err)
}
