package backend

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimerArg(t *testing.T) {
	tests := []struct {
		input    string
		want     time.Duration
		wantStop bool
	}{
		{"15", 15 * time.Minute, false},
		{" 60 ", time.Hour, false},
		{"45m", 45 * time.Minute, false},
		{"1h30m", 90 * time.Minute, false},
		{"never", 0, true},
		{"Never", 0, true},
	}
	for _, tt := range tests {
		d, stop, err := ParseTimerArg(tt.input)
		if err != nil || d != tt.want || stop != tt.wantStop {
			t.Errorf("ParseTimerArg(%q) = %v, %t, %v, want %v, %t", tt.input, d, stop, err, tt.want, tt.wantStop)
		}
	}
}

func TestParseTimerArg_Invalid(t *testing.T) {
	for _, input := range []string{"", "soon", "0", "-5", "-1h"} {
		if _, _, err := ParseTimerArg(input); err == nil {
			t.Errorf("ParseTimerArg(%q) expected error", input)
		}
	}
	for _, input := range []string{"0", "500us", "999999999999"} {
		if _, _, err := ParseTimerArg(input); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("ParseTimerArg(%q) error = %v, want ErrInvalidDuration", input, err)
		}
	}
}
