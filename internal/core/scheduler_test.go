package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSchedulerRunsAllWork(t *testing.T) {
	t.Parallel()
	s := NewScheduler(context.Background(), 4, 16)
	defer s.Shutdown()

	var mu sync.Mutex
	done := make(map[string]error)
	keys := []string{"a.com", "b.com", "c.com", "d.com", "e.com", "f.com"}
	for _, k := range keys {
		err := s.Submit(context.Background(), k,
			func(ctx context.Context) error { return nil },
			func(err error) {
				mu.Lock()
				done[k] = err
				mu.Unlock()
			})
		if err != nil {
			t.Fatalf("Submit(%s): %v", k, err)
		}
	}
	s.Wait()

	if len(done) != len(keys) {
		t.Fatalf("completed %d of %d items", len(done), len(keys))
	}
	for k, err := range done {
		if err != nil {
			t.Errorf("%s: %v", k, err)
		}
	}
}

func TestSchedulerSerializesSameKey(t *testing.T) {
	t.Parallel()
	s := NewScheduler(context.Background(), 8, 16)
	defer s.Shutdown()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		err := s.Submit(context.Background(), "same.com", func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}, nil)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	s.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v; same-key work must run in submission order", order)
		}
	}
}

func TestSchedulerRecoversPanics(t *testing.T) {
	t.Parallel()
	s := NewScheduler(context.Background(), 1, 4)
	defer s.Shutdown()

	errs := make(chan error, 2)
	s.Submit(context.Background(), "x", func(ctx context.Context) error { panic("boom") }, func(err error) { errs <- err })
	s.Submit(context.Background(), "x", func(ctx context.Context) error { return nil }, func(err error) { errs <- err })
	s.Wait()

	var pe *PanicError
	if err := <-errs; !errors.As(err, &pe) || pe.Value != "boom" {
		t.Fatalf("first err = %v; want PanicError", err)
	}
	if err := <-errs; err != nil {
		t.Fatalf("worker should survive a panic, second err = %v", err)
	}
}

func TestSchedulerQueueFull(t *testing.T) {
	t.Parallel()
	s := NewScheduler(context.Background(), 1, 1)
	defer s.Shutdown()

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}
	if err := s.Submit(context.Background(), "k", blocking, nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started
	noop := func(ctx context.Context) error { return nil }
	if err := s.Submit(context.Background(), "k", noop, nil); err != nil {
		t.Fatalf("Submit into empty queue: %v", err)
	}
	err := s.Submit(context.Background(), "k", noop, nil)
	if !errors.Is(err, ErrQueueFull) || !IsRetryable(err) {
		t.Fatalf("err = %v; want retryable ErrQueueFull", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	if err := s.SubmitWait(context.Background(), "k", noop, nil); err != nil {
		t.Fatalf("SubmitWait should succeed once the queue drains: %v", err)
	}
	s.Wait()
}

func TestSchedulerCanceledWorkIsReported(t *testing.T) {
	t.Parallel()
	s := NewScheduler(context.Background(), 1, 4)
	defer s.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	var got error
	if err := s.Submit(ctx, "k", func(ctx context.Context) error { ran = true; return nil }, func(err error) { got = err }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.Wait()
	if ran {
		t.Fatal("canceled work must not run")
	}
	if !errors.Is(got, ErrWorkerShutdown) {
		t.Fatalf("done err = %v; want ErrWorkerShutdown", got)
	}
}

func TestSchedulerShutdown(t *testing.T) {
	t.Parallel()
	s := NewScheduler(context.Background(), 2, 4)

	var ran sync.WaitGroup
	ran.Add(1)
	if err := s.Submit(context.Background(), "k", func(ctx context.Context) error { ran.Done(); return nil }, nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.Shutdown()
	ran.Wait()
	s.Shutdown()

	err := s.Submit(context.Background(), "k", func(ctx context.Context) error { return nil }, nil)
	if !errors.Is(err, ErrWorkerShutdown) {
		t.Fatalf("Submit after Shutdown = %v", err)
	}
	if IsRetryable(err) {
		t.Fatal("shutdown is not retryable")
	}
}
