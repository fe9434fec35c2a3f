package playback

import (
	"context"
	"errors"
	"time"
)

// ErrCancelled reports that an in-flight wait or playback step was stopped by
// its context. It is normal control flow, never surfaced as a session failure.
var ErrCancelled = errors.New("playback: cancelled")

// Wait blocks for d or until ctx is cancelled, whichever comes first. An
// already-cancelled context fails immediately without scheduling a timer, and
// cancellation before expiry deterministically stops the timer.
func Wait(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ErrCancelled
	case <-timer.C:
		return nil
	}
}
