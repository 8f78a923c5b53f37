package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/x-stp/rxurls/internal/source"
)

type runnerFunc func(ctx context.Context, domain string) DomainResult

func (f runnerFunc) Run(ctx context.Context, domain string) DomainResult { return f(ctx, domain) }

func TestLoadWorkList(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	list := filepath.Join(dir, "domains.txt")
	content := "# targets\na.com\n\n  b.com  \n#c.com\nd.com\n"
	if err := os.WriteFile(list, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadWorkList("", list)
	if err != nil {
		t.Fatalf("LoadWorkList: %v", err)
	}
	if strings.Join(got, ",") != "a.com,b.com,d.com" {
		t.Fatalf("domains = %v", got)
	}

	got, err = LoadWorkList(" x.com ", list)
	if err != nil || got[0] != "x.com" || len(got) != 4 {
		t.Fatalf("domains = %v, err = %v", got, err)
	}

	if _, err := LoadWorkList("", filepath.Join(dir, "missing.txt")); !errors.Is(err, ErrSetup) {
		t.Fatalf("missing list err = %v; want ErrSetup", err)
	}
	if _, err := LoadWorkList("", ""); !errors.Is(err, ErrSetup) {
		t.Fatalf("empty work list err = %v; want ErrSetup", err)
	}
}

func TestIsPublicSuffix(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]bool{
		"com":             true,
		"co.uk":           true,
		"github.io":       true,
		"example.com":     false,
		"example.co.uk":   false,
		"https://co.uk/":  true,
		"192.168.1.1":     false,
		"sub.example.com": false,
	} {
		if got := IsPublicSuffix(in); got != want {
			t.Errorf("IsPublicSuffix(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestBatchContinuesPastFailures(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	index := NewRunIndex(filepath.Join(dir, "index.txt"))
	runner := runnerFunc(func(ctx context.Context, domain string) DomainResult {
		switch domain {
		case "panic.com":
			panic("adapter bug")
		case "abort.com":
			return DomainResult{Domain: domain, Aborted: true, Err: ErrDomainAborted}
		case "partial.com":
			return DomainResult{Domain: domain, Count: 2, Failed: []string{"gau"}}
		default:
			return DomainResult{Domain: domain, Count: 5}
		}
	})

	var mu sync.Mutex
	var reported []string
	b := NewBatch(runner, index, 1)
	b.OnResult = func(r DomainResult) {
		mu.Lock()
		reported = append(reported, r.Domain)
		mu.Unlock()
	}
	summary := b.Run(context.Background(), []string{"a.com", "panic.com", "abort.com", "partial.com", "z.com"})

	if summary.Succeeded != 2 || summary.Partial != 1 || summary.Failed != 2 || summary.Canceled != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	var pe *PanicError
	if !errors.As(summary.Results[1].Err, &pe) {
		t.Fatalf("panic result err = %v", summary.Results[1].Err)
	}
	if len(reported) != 5 {
		t.Fatalf("OnResult called %d times", len(reported))
	}

	got := readLines(t, index.Path())
	want := []string{"a.com - 5", "partial.com - 2 [failed: gau]", "z.com - 5"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("index = %q; want %q", got, want)
	}
}

func TestBatchCanceledBeforeStart(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := runnerFunc(func(ctx context.Context, domain string) DomainResult {
		t.Errorf("runner called for %s after cancellation", domain)
		return DomainResult{Domain: domain}
	})
	summary := NewBatch(runner, nil, 2).Run(ctx, []string{"a.com", "b.com"})
	if summary.Canceled != 2 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestBatchParallelWorkers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	index := NewRunIndex(filepath.Join(dir, "index.txt"))
	runner := runnerFunc(func(ctx context.Context, domain string) DomainResult {
		return DomainResult{Domain: domain, Count: 1}
	})
	var domains []string
	for i := 0; i < 40; i++ {
		domains = append(domains, fmt.Sprintf("d%02d.com", i))
	}
	summary := NewBatch(runner, index, 4).Run(context.Background(), domains)
	if summary.Succeeded != 40 {
		t.Fatalf("summary = %+v", summary)
	}
	for i, r := range summary.Results {
		if r.Domain != domains[i] {
			t.Fatalf("results out of work list order at %d: %s", i, r.Domain)
		}
	}
	if got := readLines(t, index.Path()); len(got) != 40 {
		t.Fatalf("index has %d lines", len(got))
	}
}

func TestBatchSerializesCollidingFileNames(t *testing.T) {
	t.Parallel()
	if shardKey("a.b") != shardKey("a_b") || shardKey("A.B") != shardKey("a_b") {
		t.Fatal("domains sharing an output file must share a shard key")
	}

	var (
		mu       sync.Mutex
		inFlight = make(map[string]int)
		overlap  atomic.Bool
	)
	runner := runnerFunc(func(ctx context.Context, domain string) DomainResult {
		name := OutputPath("", domain)
		mu.Lock()
		inFlight[name]++
		if inFlight[name] > 1 {
			overlap.Store(true)
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight[name]--
		mu.Unlock()
		return DomainResult{Domain: domain, Count: 1}
	})

	var domains []string
	for i := 0; i < 8; i++ {
		domains = append(domains, fmt.Sprintf("x%d.b", i), fmt.Sprintf("x%d_b", i))
	}
	summary := NewBatch(runner, NewRunIndex(filepath.Join(t.TempDir(), "index.txt")), 4).Run(context.Background(), domains)
	if summary.Succeeded != len(domains) {
		t.Fatalf("summary = %+v", summary)
	}
	if overlap.Load() {
		t.Fatal("domains mapping to the same output file ran concurrently")
	}
}

func TestBatchIndexAcrossRuns(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	perDomain := &source.Func{
		AdapterName: "static",
		Fn: func(ctx context.Context, t source.Target, emit func(string)) error {
			emit("https://" + t.Domain + "/")
			emit("https://" + t.Domain + "/login")
			return nil
		},
	}
	pipeline := NewPipeline(testPipelineConfig(dir), []source.Adapter{perDomain}, nil)
	index := NewRunIndex(filepath.Join(dir, "index.txt"))

	NewBatch(pipeline, index, 1).Run(context.Background(), []string{"a.com", "b.com"})
	NewBatch(pipeline, index, 1).Run(context.Background(), []string{"a.com"})

	got := readLines(t, index.Path())
	want := []string{"a.com - 2", "b.com - 2", "a.com - 2"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("index = %q; want %q", got, want)
	}
	for _, d := range []string{"a.com", "b.com"} {
		if lines := readLines(t, OutputPath(dir, d)); len(lines) != 2 {
			t.Fatalf("%s output = %q", d, lines)
		}
	}
}
