package util

import "testing"

func TestSanitizePostgresText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "Acme Corp", "Acme Corp"},
		{"accents kept", "Société Générale", "Société Générale"},
		{"null byte", "Ac\x00me", "Acme"},
		{"invalid utf8", string([]byte{'A', 0xff, 'c', 'm', 'e'}), "Acme"},
		{"both", "\x00" + string([]byte{0xc3}) + "x", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizePostgresText(tt.input); got != tt.want {
				t.Fatalf("SanitizePostgresText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
