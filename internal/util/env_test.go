package util

import (
	"testing"
	"time"
)

func TestGetEnvInt(t *testing.T) {
	t.Setenv("NG_TEST_INT", "12")
	if got := GetEnvInt("NG_TEST_INT", 3); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
	t.Setenv("NG_TEST_INT", "twelve")
	if got := GetEnvInt("NG_TEST_INT", 3); got != 3 {
		t.Fatalf("expected default 3, got %d", got)
	}
	if got := GetEnvInt("NG_TEST_INT_MISSING", 7); got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "go duration", value: "2s", want: 2 * time.Second},
		{name: "bare milliseconds", value: "1500", want: 1500 * time.Millisecond},
		{name: "invalid falls back", value: "soon", want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NG_TEST_DURATION", tt.value)
			if got := GetEnvDuration("NG_TEST_DURATION", time.Minute); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGetEnvBoolAndString(t *testing.T) {
	t.Setenv("NG_TEST_BOOL", "yes")
	if !GetEnvBool("NG_TEST_BOOL", true) {
		t.Fatal("expected default for unrecognised bool")
	}
	t.Setenv("NG_TEST_BOOL", "false")
	if GetEnvBool("NG_TEST_BOOL", true) {
		t.Fatal("expected false")
	}
	t.Setenv("NG_TEST_STRING", "  ")
	if got := GetEnvString("NG_TEST_STRING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	if got := GetEnvFloat("NG_TEST_FLOAT_MISSING", 0.5); got != 0.5 {
		t.Fatalf("expected 0.5, got %v", got)
	}
}
