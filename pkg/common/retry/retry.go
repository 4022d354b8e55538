package retry

import (
	"context"
	"time"
)

// Policy is an explicit retry policy passed to operations that call
// external collaborators. There is no decorator magic: the caller decides
// how often and how patiently to retry.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// None performs exactly one attempt.
var None = Policy{MaxAttempts: 1}

// Do runs fn until it succeeds, the attempts are exhausted, or the context
// is cancelled. The backoff doubles after each failed attempt.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		if backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}
