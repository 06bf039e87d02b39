package log

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.WarnLevel},
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"loud", zerolog.WarnLevel},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in, zerolog.WarnLevel); got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestWithComponentLevelRaisesThreshold(t *testing.T) {
	l := WithComponentLevel("transport", "warn")
	if l.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("level = %v, want %v", l.GetLevel(), zerolog.WarnLevel)
	}
}
