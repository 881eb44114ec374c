package util

import (
	"encoding"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var _ (encoding.TextUnmarshaler) = (*DurationWrap)(nil)
var _ (encoding.TextMarshaler) = DurationWrap{}
var _ (flag.Value) = (*DurationWrap)(nil)

// DurationWrap lets a duration be written as text in configuration files and flags, e.g.
// "30s", "1m30s" or "2d".
type DurationWrap struct {
	time.Duration
}

func (d *DurationWrap) UnmarshalText(text []byte) error {
	return d.Set(string(text))
}

func (d *DurationWrap) Set(text string) error {
	var err error
	d.Duration, err = ParseDuration(text)
	return err
}

func (d DurationWrap) MarshalText() (text []byte, err error) {
	return []byte(FmtDuration(d.Duration)), nil
}

func (d DurationWrap) String() string {
	return FmtDuration(d.Duration)
}

const day = 24 * time.Hour

// ParseDuration accepts the format of time.ParseDuration, and also a whole number of days
// with the "d" unit.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * day, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// FmtDuration is the inverse of ParseDuration.
func FmtDuration(d time.Duration) string {
	if d != 0 && d%day == 0 {
		return strconv.FormatInt(int64(d/day), 10) + "d"
	}
	return d.String()
}
