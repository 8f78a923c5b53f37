package core

import (
	"testing"
)

func TestFilterKeep(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name   string
		domain string
		strict bool
		record string
		want   bool
	}{
		{"https on domain", "example.com", false, "https://example.com/a", true},
		{"ftp rejected", "example.com", false, "ftp://example.com/b", false},
		{"other domain", "example.com", false, "https://other.com/c", false},
		{"uppercase scheme", "example.com", false, "HTTP://example.com/", true},
		{"uppercase host", "example.com", false, "https://EXAMPLE.com/x", true},
		{"no scheme", "example.com", false, "example.com/a", false},
		{"substring in query", "example.com", false, "https://evil.net/?u=example.com", true},
		{"strict rejects query mention", "example.com", true, "https://evil.net/?u=example.com", false},
		{"strict subdomain", "example.com", true, "https://api.example.com/v1", true},
		{"strict lookalike", "example.com", true, "https://notexample.com/", false},
		{"strict port", "example.com", true, "http://example.com:8080/x", true},
		{"strict path scope", "example.com/app", true, "https://example.com/app/login", true},
		{"strict outside path", "example.com/app", true, "https://example.com/other", false},
		{"path domain substring", "example.com/app", false, "https://example.com/app/x", true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := NewFilter(tc.domain, tc.strict)
			if got := f.Keep(tc.record); got != tc.want {
				t.Errorf("Keep(%q) with domain %q strict=%v = %v; want %v", tc.record, tc.domain, tc.strict, got, tc.want)
			}
		})
	}
}

func TestFilterExampleSet(t *testing.T) {
	t.Parallel()
	f := NewFilter("example.com", false)
	var kept []string
	for _, rec := range []string{"https://example.com/a", "ftp://example.com/b", "https://other.com/c"} {
		if f.Keep(rec) {
			kept = append(kept, rec)
		}
	}
	if len(kept) != 1 || kept[0] != "https://example.com/a" {
		t.Fatalf("kept = %v", kept)
	}
}
