package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrQuotaExceeded = errors.New("generation quota exceeded")
	ErrNoBackends    = errors.New("no generation backend configured")
)

// AttemptError is one backend's failure.
type AttemptError struct {
	Backend string
	Err     error
}

func (e *AttemptError) Error() string { return e.Backend + ": " + e.Err.Error() }
func (e *AttemptError) Unwrap() error { return e.Err }

// ExhaustedError is returned when every backend failed.
type ExhaustedError struct {
	Attempts []*AttemptError
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d generation backends failed:", len(e.Attempts))
	for _, a := range e.Attempts {
		b.WriteString("\n  - ")
		b.WriteString(a.Error())
	}
	return b.String()
}

func (e *ExhaustedError) Unwrap() []error {
	out := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a
	}
	return out
}

// Fallback calls fn with each backend in order and returns the first
// success. A quota error stops the chain because the next backend shares the
// same account.
func Fallback[T any](ctx context.Context, backends []Backend, fn func(context.Context, Backend) (T, error)) (T, error) {
	var zero T
	if len(backends) == 0 {
		return zero, ErrNoBackends
	}

	exhausted := &ExhaustedError{}
	for _, b := range backends {
		if err := ctx.Err(); err != nil {
			exhausted.Attempts = append(exhausted.Attempts, &AttemptError{Backend: b.Name(), Err: err})
			return zero, exhausted
		}

		v, err := fn(ctx, b)
		if err == nil {
			return v, nil
		}

		attempt := &AttemptError{Backend: b.Name(), Err: err}
		if errors.Is(err, ErrQuotaExceeded) {
			return zero, attempt
		}
		exhausted.Attempts = append(exhausted.Attempts, attempt)
	}

	return zero, exhausted
}
