// Package shutdownqueue is a process-wide LIFO queue of cleanup tasks.
//
// Components register their teardown right after they start:
//
//	shutdownqueue.AddNamed("http server", srv.Shutdown)
//
// and main drains the queue once, under a deadline:
//
//	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
//	defer cancel()
//	err := shutdownqueue.Shutdown(ctx)
//
// Tasks run once, newest first. Panics are recovered and reported as errors.
package shutdownqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is a shutdown function. It should honor ctx and return an error
// if it can't finish.
type Task func(ctx context.Context) error

type entry struct {
	name string
	task Task
}

type queue struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

var q = &queue{entries: make([]entry, 0, 8)}

// Add registers an unnamed task.
func Add(t Task) {
	AddNamed("", t)
}

// AddNamed registers a task under a name used in logs and errors.
// Nil tasks and tasks added after Shutdown started are ignored.
func AddNamed(name string, t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	if name == "" {
		name = fmt.Sprintf("task-%d", len(q.entries)+1)
	}

	q.entries = append(q.entries, entry{name: name, task: t})
}

// Len reports how many tasks are waiting.
func Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}

// Shutdown drains the queue in LIFO order. Later calls are no-ops.
//
// When ctx ends mid-drain the remaining tasks are skipped and the context
// error is joined with the task errors collected so far.
func Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed && len(q.entries) == 0 {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()

	var errs []error

	for i := len(entries) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			skipped := i + 1
			errs = append(errs, fmt.Errorf("shutdown canceled with %d task(s) left: %w", skipped, ctx.Err()))
			return errors.Join(errs...)
		}

		err := run(ctx, entries[i])
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func run(ctx context.Context, e entry) (err error) {
	start := time.Now()

	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("%s: panic in shutdown task: %v", e.name, r)
		}

		if err != nil {
			slog.Error("shutdown task failed", "task", e.name, "error", err)
			return
		}
		slog.Info("shutdown task done", "task", e.name, "took", time.Since(start))
	}()

	terr := e.task(ctx)
	if terr != nil {
		return fmt.Errorf("%s: %w", e.name, terr)
	}

	return nil
}
