// Package retry runs an operation with bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

var Default = Policy{Attempts: 3, Initial: 200 * time.Millisecond, Max: 2 * time.Second}

// Do calls op until it succeeds, the attempts are used up, ctx is done, or
// permanent reports the error as not worth retrying. The last error is
// returned unwrapped.
func Do(ctx context.Context, p Policy, permanent func(error) bool, op func(context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		exp.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		exp.MaxInterval = p.Max
	}
	exp.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.Attempts-1)), ctx)

	return backoff.Retry(func() error {
		err := op(ctx)
		if err != nil && permanent != nil && permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
