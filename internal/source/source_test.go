package source

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestWrap(t *testing.T) {
	t.Parallel()
	if Wrap(context.Background(), "x", nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
	}

	base := errors.New("exit status 1")
	ae := Wrap(context.Background(), "gau", base)
	if ae.Adapter != "gau" || ae.Timeout || !errors.Is(ae, base) || ae.Reason() != "error" {
		t.Fatalf("unexpected wrap %+v", ae)
	}
	if again := Wrap(context.Background(), "other", ae); again != ae {
		t.Fatal("wrapping an AdapterError should return it unchanged")
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if got := Wrap(canceled, "gau", canceled.Err()); got.Timeout || got.Reason() != "canceled" {
		t.Fatalf("canceled context reported as %+v", got)
	}
	if !strings.Contains(Wrap(context.Background(), "gau", context.DeadlineExceeded).Error(), "timed out") {
		t.Fatal("deadline errors should read as timeouts")
	}
}

func TestStaticAndFunc(t *testing.T) {
	t.Parallel()
	a := Static("fixed", "https://example.com/1", "https://example.com/2")
	if a.Name() != "fixed" || a.Seeding() != DomainSeeded {
		t.Fatalf("unexpected adapter %s/%s", a.Name(), a.Seeding())
	}
	var c collector
	if err := a.Discover(context.Background(), Target{Domain: "example.com"}, c.emit); err != nil {
		t.Fatal(err)
	}
	if len(c.sorted()) != 2 {
		t.Fatalf("emitted %v", c.sorted())
	}
	if EndpointSeeded.String() != "endpoints" {
		t.Fatalf("Seeding.String = %s", EndpointSeeded)
	}
}
