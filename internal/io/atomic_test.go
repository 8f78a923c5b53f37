package io

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestReadLinesMissingFile(t *testing.T) {
	t.Parallel()
	lines, err := ReadLines(filepath.Join(t.TempDir(), "absent"))
	if err != nil || lines != nil {
		t.Fatalf("ReadLines(missing) = %v, %v; want nil, nil", lines, err)
	}
}

func TestReadLinesSkipsBlanks(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "list")
	if err := os.WriteFile(path, []byte("a\n\n  b  \n\t\nc"), 0644); err != nil {
		t.Fatal(err)
	}
	lines, err := ReadLines(path)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if got := strings.Join(lines, ","); got != "a,b,c" {
		t.Fatalf("lines = %q; want a,b,c", got)
	}
	n, err := CountLines(path)
	if err != nil || n != 3 {
		t.Fatalf("CountLines = %d, %v; want 3", n, err)
	}
}

func TestScanLinesSkipsOverlongLines(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("a", MaxLineSize+1)
	atCap := strings.Repeat("b", MaxLineSize)
	tests := []struct {
		name        string
		input       string
		want        []string
		wantSkipped int
	}{
		{"between good lines", "/a\n" + long + "\n/b\n", []string{"/a", "/b"}, 1},
		{"trailing without newline", "/a\n" + long, []string{"/a"}, 1},
		{"exactly at cap", atCap + "\r\n/c", []string{atCap, "/c"}, 0},
		{"two in a row", long + "\n" + long + "\n/d", []string{"/d"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got []string
			skipped, err := ScanLines(strings.NewReader(tt.input), func(line string) {
				got = append(got, line)
			})
			if err != nil {
				t.Fatalf("ScanLines: %v", err)
			}
			if skipped != tt.wantSkipped {
				t.Errorf("skipped = %d; want %d", skipped, tt.wantSkipped)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d lines; want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("line %d has %d bytes; want %d", i, len(got[i]), len(tt.want[i]))
				}
			}
		})
	}
}

func TestReadLinesToleratesOverlongRecord(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "store")
	data := "https://example.com/a\n" + strings.Repeat("x", 2_000_000) + "\nhttps://example.com/b\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	lines, err := ReadLines(path)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if got := strings.Join(lines, ","); got != "https://example.com/a,https://example.com/b" {
		t.Fatalf("lines = %q", got)
	}
}

func TestRepairTornTail(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name    string
		content string
		want    string
		removed int64
	}{
		{"Clean", "a\nb\n", "a\nb\n", 0},
		{"Torn", "a\nb\nhttps://par", "a\nb\n", 11},
		{"Only partial", "partial", "", 7},
		{"Empty", "", "", 0},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "f")
			if err := os.WriteFile(path, []byte(tc.content), 0644); err != nil {
				t.Fatal(err)
			}
			removed, err := RepairTornTail(path)
			if err != nil {
				t.Fatalf("RepairTornTail: %v", err)
			}
			if removed != tc.removed {
				t.Errorf("removed = %d; want %d", removed, tc.removed)
			}
			data, _ := os.ReadFile(path)
			if string(data) != tc.want {
				t.Errorf("content = %q; want %q", data, tc.want)
			}
		})
	}
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "example_com.txt")
	if err := os.WriteFile(path, []byte("old\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []string{"a", "b"}); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "a\nb\n" {
		t.Fatalf("content = %q", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind: %v", err)
	}
}

func TestAppendLineConcurrent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "index.txt")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := AppendLine(path, "example.com - 42"); err != nil {
				t.Errorf("AppendLine: %v", err)
			}
		}()
	}
	wg.Wait()
	lines, err := ReadLines(path)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(lines) != 20 {
		t.Fatalf("got %d lines; want 20", len(lines))
	}
	for _, l := range lines {
		if l != "example.com - 42" {
			t.Fatalf("corrupt line %q", l)
		}
	}
}
