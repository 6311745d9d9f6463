package progress

import (
	"strings"
	"testing"
	"time"
)

func TestBarSetClamps(t *testing.T) {
	b := NewBar("test", 100, 0)
	b.Set(150)
	if b.currentValue != 100 {
		t.Errorf("Set(150) clamped to %d, want 100", b.currentValue)
	}
}

func TestBarPercent(t *testing.T) {
	b := NewBar("test", 200, 0)
	b.Set(50)
	if got := b.percent(); got != 25 {
		t.Errorf("percent() = %v, want 25", got)
	}

	zero := NewBar("test", 0, 0)
	if got := zero.percent(); got != 0 {
		t.Errorf("percent() with zero max = %v, want 0", got)
	}
}

func TestBarString(t *testing.T) {
	b := NewBar("pulling weights", 800, 0)
	b.Set(400)

	s := b.String()
	if !strings.Contains(s, "pulling weights") {
		t.Errorf("String() missing message: %q", s)
	}
	if !strings.Contains(s, "50%") {
		t.Errorf("String() missing percentage: %q", s)
	}
	if !strings.Contains(s, "400 B/800 B") {
		t.Errorf("String() missing byte counts: %q", s)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		input    string
		expected string
	}{
		{"30s", "30s"},
		{"90m", "1h30m"},
		{"101h", "99h+"},
	}

	for _, tt := range cases {
		d, err := time.ParseDuration(tt.input)
		if err != nil {
			t.Fatal(err)
		}
		if got := formatDuration(d); got != tt.expected {
			t.Errorf("formatDuration(%s) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
