package util

import "testing"

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "shorter than max", input: "short", maxLen: 10, want: "short"},
		{name: "exactly max", input: "12345678", maxLen: 8, want: "12345678"},
		{name: "longer than max", input: "very-long-token-abc123", maxLen: 8, want: "very-lon"},
		{name: "empty string", input: "", maxLen: 5, want: ""},
		{name: "zero max", input: "abc", maxLen: 0, want: ""},
		{name: "negative max", input: "abc", maxLen: -1, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTruncate(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "no trailing slash", input: "https://kv.example.com", want: "https://kv.example.com"},
		{name: "single trailing slash", input: "https://kv.example.com/", want: "https://kv.example.com"},
		{name: "multiple trailing slashes", input: "https://kv.example.com///", want: "https://kv.example.com"},
		{name: "empty string", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeURL(tt.input); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
