package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeDomain(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"Simple domain", "example.com", "example_com"},
		{"Subdomain", "api.example.com", "api_example_com"},
		{"Domain with path", "example.com/app", "example_com_app"},
		{"Scheme and port", "https://example.com:8443", "https___example_com_8443"},
		{"Surrounding spaces", "  example.com ", "example_com"},
		{"Already safe", "localhost", "localhost"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeDomain(tc.input); got != tc.expected {
				t.Errorf("SanitizeDomain(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestSanitizeFilenameKeepsDots(t *testing.T) {
	t.Parallel()
	if got := SanitizeFilename("example.com"); got != "example.com" {
		t.Fatalf("SanitizeFilename = %q", got)
	}
	if got := SanitizeFilename("example.com/a:b"); got != "example.com_a_b" {
		t.Fatalf("SanitizeFilename = %q", got)
	}
	if got := SanitizeFilename(".."); got != "__" {
		t.Fatalf("SanitizeFilename(..) = %q", got)
	}
}

func TestSanitizeDomainLongInputsStayDistinct(t *testing.T) {
	t.Parallel()
	prefix := strings.Repeat("a", 150)
	first := SanitizeDomain(prefix + ".one.com")
	second := SanitizeDomain(prefix + ".two.com")

	if len(first) > maxNameLength || len(second) > maxNameLength {
		t.Fatalf("expected bounded names, got %d and %d bytes", len(first), len(second))
	}
	if first == second {
		t.Fatalf("expected distinct names for distinct long domains, both %q", first)
	}
	if again := SanitizeDomain(prefix + ".one.com"); again != first {
		t.Fatalf("expected deterministic output, got %q then %q", first, again)
	}
}

func TestSanitizeLongMultibyteStaysValidUTF8(t *testing.T) {
	t.Parallel()
	for _, r := range []string{"ü", "日", "😀"} {
		for pad := 0; pad < 4; pad++ {
			domain := strings.Repeat("a", pad) + strings.Repeat(r, 80) + ".example"
			for _, got := range []string{SanitizeDomain(domain), SanitizeFilename(domain)} {
				if !utf8.ValidString(got) {
					t.Errorf("pad %d rune %s: %q is not valid UTF-8", pad, r, got)
				}
				if len(got) > maxNameLength {
					t.Errorf("pad %d rune %s: %d bytes; want at most %d", pad, r, len(got), maxNameLength)
				}
			}
		}
	}
}

func TestHost(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{
		"example.com":                "example.com",
		"https://Example.com:8443/x": "example.com",
		"example.com/app":            "example.com",
		"127.0.0.1:8080":             "127.0.0.1",
		"http://[::1]:80/":           "::1",
		"example.com.":               "example.com",
	} {
		if got := Host(in); got != want {
			t.Errorf("Host(%q) = %q; want %q", in, got, want)
		}
	}
	if got := StripScheme("https://example.com/app"); got != "example.com/app" {
		t.Errorf("StripScheme = %q", got)
	}
}
