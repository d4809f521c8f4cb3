package store

import (
	"context"
	"errors"
	"time"
)

type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy makes three attempts, waiting 50ms, then 100ms.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 50 * time.Millisecond}

// run calls fn until it succeeds, fails permanently, or the attempts are used
// up. Domain errors are returned as they are. Everything else comes back as a
// *PersistenceError.
func (p RetryPolicy) run(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = translate(fn(ctx))
		if err == nil {
			return nil
		}
		if permanent(err) {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return &PersistenceError{Op: op, Err: err}
			}
			return err
		}
		if attempt == attempts {
			break
		}

		t := time.NewTimer(p.Backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return &PersistenceError{Op: op, Err: ctx.Err()}
		case <-t.C:
		}
	}

	return &PersistenceError{Op: op, Err: err}
}
