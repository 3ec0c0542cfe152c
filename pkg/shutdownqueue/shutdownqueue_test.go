package shutdownqueue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// resetQueue clears the global queue after the test.
func resetQueue(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		q.mu.Lock()
		q.entries = nil
		q.closed = false
		q.mu.Unlock()
	})
}

//nolint:paralleltest
func TestAddNilTaskIgnored(t *testing.T) {
	resetQueue(t)

	Add(nil)
	AddNamed("nil", nil)

	if Len() != 0 {
		t.Fatalf("expected empty queue, got %d", Len())
	}
	if err := Shutdown(t.Context()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

//nolint:paralleltest
func TestLIFOOrder(t *testing.T) {
	resetQueue(t)

	var (
		mu    sync.Mutex
		order []string
	)

	for _, name := range []string{"db", "kafka", "http"} {
		AddNamed(name, func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	if err := Shutdown(t.Context()); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}

	want := []string{"http", "kafka", "db"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Fatalf("order: got %v, want %v", order, want)
	}
}

//nolint:paralleltest
func TestErrorsCarryTaskName(t *testing.T) {
	resetQueue(t)

	errA := errors.New("flush failed")
	var ranAfterPanic atomic.Bool

	AddNamed("kafka", func(context.Context) error { return errA })
	AddNamed("cron", func(context.Context) error { panic("boom") })
	AddNamed("http", func(context.Context) error {
		ranAfterPanic.Store(true)
		return nil
	})

	err := Shutdown(t.Context())
	if !errors.Is(err, errA) {
		t.Fatalf("expected joined task error, got %v", err)
	}
	if !strings.Contains(err.Error(), "kafka: flush failed") {
		t.Fatalf("expected task name in error, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "cron: panic in shutdown task: boom") {
		t.Fatalf("expected panic message, got %q", err.Error())
	}
	if !ranAfterPanic.Load() {
		t.Fatal("task registered after the panicking one must still run first")
	}
}

//nolint:paralleltest
func TestEarlyCancelSkipsRemaining(t *testing.T) {
	resetQueue(t)

	var ranB atomic.Bool
	gateReady := make(chan struct{})

	AddNamed("a", func(context.Context) error { return errors.New("a") })
	AddNamed("b", func(context.Context) error {
		ranB.Store(true)
		return nil
	})
	AddNamed("gate", func(ctx context.Context) error {
		close(gateReady)
		<-ctx.Done()
		return nil
	})

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- Shutdown(ctx) }()

	<-gateReady
	cancel()

	err := <-errCh
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ranB.Load() {
		t.Fatal("b must not run after cancel")
	}
	if !strings.Contains(err.Error(), "2 task(s) left") {
		t.Fatalf("expected skipped count, got %q", err.Error())
	}
}

//nolint:paralleltest
func TestIdempotentAndClosed(t *testing.T) {
	resetQueue(t)

	var count atomic.Int32
	Add(func(context.Context) error {
		count.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown #1: %v", err)
	}
	if err := Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown #2: %v", err)
	}
	if got := count.Load(); got != 1 {
		t.Fatalf("expected one run, got %d", got)
	}

	Add(func(context.Context) error {
		count.Add(1)
		return nil
	})
	if Len() != 0 {
		t.Fatal("Add after Shutdown must be ignored")
	}
}
