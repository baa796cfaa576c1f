package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithDeadline runs fn under a derived context that expires after
// timeout. A non-positive timeout runs fn directly. fn must honor its
// context; the goroutine is not killed, only abandoned, when the
// deadline fires first.
func WithDeadline(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- fn(dctx) }()

	select {
	case err := <-errc:
		return err
	case <-dctx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w after %v", name, context.DeadlineExceeded, timeout)
	}
}
