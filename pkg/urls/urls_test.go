package urls_test

import (
	"testing"

	"clipd/pkg/urls"
)

func TestIsURLValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want bool
	}{
		{raw: "https://example.com/watch?v=abc", want: true},
		{raw: "http://example.com", want: true},
		{raw: "ftp://example.com/file", want: false},
		{raw: "example.com/watch", want: false},
		{raw: "not a url", want: false},
		{raw: "", want: false},
	}

	for _, tt := range tests {
		if got := urls.IsURLValid(tt.raw); got != tt.want {
			t.Errorf("IsURLValid(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{raw: "  https://example.com/v  ", want: "https://example.com/v"},
		{raw: "https://example.com/v?t=10", want: "https://example.com/v?t=10"},
		{raw: "::bad::", want: "::bad::"},
	}

	for _, tt := range tests {
		if got := urls.Normalize(tt.raw); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
