package market

import (
	"context"
	"time"
)

type timeoutSource struct {
	src     QuoteSource
	timeout time.Duration
}

// WithTimeout bounds every lookup on src by d. The bound holds even when src
// ignores its context: the caller gets context.DeadlineExceeded and the late
// answer is dropped. A non-positive d returns src unchanged.
func WithTimeout(src QuoteSource, d time.Duration) QuoteSource {
	if d <= 0 {
		return src
	}
	return &timeoutSource{src: src, timeout: d}
}

func (t *timeoutSource) Lookup(ctx context.Context, symbol string) (Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		q   Quote
		err error
	}
	ch := make(chan result, 1)
	go func() {
		q, err := t.src.Lookup(ctx, symbol)
		ch <- result{q, err}
	}()

	select {
	case r := <-ch:
		return r.q, r.err
	case <-ctx.Done():
		return Quote{}, ctx.Err()
	}
}
