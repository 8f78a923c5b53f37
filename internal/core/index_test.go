package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	s := strings.TrimSuffix(string(b), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestFormatEntry(t *testing.T) {
	t.Parallel()
	if got := FormatEntry("a.com", 12, nil); got != "a.com - 12" {
		t.Errorf("FormatEntry = %q", got)
	}
	if got := FormatEntry("a.com", 0, []string{"gau", "katana"}); got != "a.com - 0 [failed: gau,katana]" {
		t.Errorf("FormatEntry = %q", got)
	}
}

func TestRunIndexAppendOnly(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "index.txt")
	ri := NewRunIndex(path)

	for _, e := range []struct {
		domain string
		count  int
	}{{"a.com", 3}, {"b.com", 1}, {"a.com", 4}} {
		if err := ri.Append(e.domain, e.count, nil); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got := readLines(t, path)
	want := []string{"a.com - 3", "b.com - 1", "a.com - 4"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("index = %q; want %q", got, want)
	}
}

func TestRunIndexConcurrentAppends(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "index.txt")
	ri := NewRunIndex(path)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := ri.Append(fmt.Sprintf("d%d.com", i), i, nil); err != nil {
				t.Errorf("Append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	lines := readLines(t, path)
	if len(lines) != 50 {
		t.Fatalf("got %d lines, want 50", len(lines))
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, "d") || !strings.Contains(l, IndexSeparator) {
			t.Fatalf("malformed line %q", l)
		}
	}
}
