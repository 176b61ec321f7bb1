package trade

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds caller-side retries of StorageConflict.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	Attempts:  4,
	BaseDelay: 25 * time.Millisecond,
	MaxDelay:  500 * time.Millisecond,
}

// Retry calls fn until it succeeds, fails with anything other than
// ErrStorageConflict, or the policy's attempts are used up. The delay doubles
// after each conflict, capped at MaxDelay.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	delay := p.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, ErrStorageConflict) || attempt >= p.Attempts {
			return err
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
