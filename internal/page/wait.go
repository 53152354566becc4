package page

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Until polls pred at the given interval until it reports true, the timeout
// elapses, or ctx is cancelled. It returns true only when the predicate
// succeeded; a timeout is not an error, since extraction is best effort and
// never blocks indefinitely. Predicate errors are treated as "not yet" and polling
// continues. The clock is injected so tests can run against a fake.
func Until(ctx context.Context, clock clockwork.Clock, pred func(context.Context) (bool, error), timeout, interval time.Duration) (bool, error) {
	if ok, err := pred(ctx); err == nil && ok {
		return true, nil
	}

	deadline := clock.After(timeout)
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline:
			return false, nil
		case <-ticker.Chan():
			if ok, err := pred(ctx); err == nil && ok {
				return true, nil
			}
		}
	}
}

// Sleep pauses the caller for the given settle interval, returning early on
// context cancellation.
func Sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}
