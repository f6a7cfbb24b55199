package util

import "testing"

func TestNormalizeEpoch(t *testing.T) {
	cases := []struct {
		in, want int64
	}{
		{1704067200, 1704067200000},
		{1704067200000, 1704067200000},
		{9_999_999_999, 9_999_999_999_000},
		{10_000_000_000, 10_000_000_000},
		{0, 0},
	}
	for _, c := range cases {
		if got := NormalizeEpoch(c.in); got != c.want {
			t.Fatalf("NormalizeEpoch(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestFormatTimestampSecondsAndMillisAgree(t *testing.T) {
	s := FormatTimestamp(1704067200)
	ms := FormatTimestamp(1704067200000)
	if s != ms {
		t.Fatalf("seconds %q and millis %q differ", s, ms)
	}
	if s != "2024-01-01 00:00:00 UTC" {
		t.Fatalf("unexpected rendering %q", s)
	}
}
