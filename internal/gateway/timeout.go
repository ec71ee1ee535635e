package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// InvokeTimeout races gw.Invoke against a timer. Whichever settles first
// wins; the timer is released on every path. A lost race returns an error
// wrapping ErrTimeout that names command and target.
func InvokeTimeout(ctx context.Context, gw Gateway, timeout time.Duration, command, target string, args, reply any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- gw.Invoke(ctx, command, args, reply)
	}()

	timedOut := func() error {
		return fmt.Errorf("%w: %s for %s after %s", ErrTimeout, command, target, timeout)
	}

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return timedOut()
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return timedOut()
		}
		return ctx.Err()
	}
}
