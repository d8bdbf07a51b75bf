package tools

import (
	"testing"
	"time"
)

func TestParseDateTime(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, loc)

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339", "2026-03-12T04:30:00Z", time.Date(2026, 3, 12, 10, 0, 0, 0, loc)},
		{"local layout", "2026-03-14 10:30", time.Date(2026, 3, 14, 10, 30, 0, 0, loc)},
		{"date only", "2026-03-14", time.Date(2026, 3, 14, 9, 0, 0, 0, loc)},
		{"tomorrow", "tomorrow 10:30", time.Date(2026, 3, 11, 10, 30, 0, 0, loc)},
		{"tomorrow at pm", "Tomorrow at 4 pm", time.Date(2026, 3, 11, 16, 0, 0, 0, loc)},
		{"today", "today 18:15", time.Date(2026, 3, 10, 18, 15, 0, 0, loc)},
		{"twelve am", "tomorrow 12am", time.Date(2026, 3, 11, 0, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDateTime(tt.input, now, loc)
			if err != nil {
				t.Fatalf("ParseDateTime(%q) error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Expected: %v, got: %v", tt.want, got)
			}
		})
	}
}

func TestParseDateTime_Invalid(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	for _, in := range []string{"", "   "} {
		if _, err := ParseDateTime(in, now, time.UTC); err == nil {
			t.Errorf("Expected error for %q", in)
		}
	}
}
