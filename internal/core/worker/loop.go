// Package worker runs the background loops: scheduled RSS ingestion and
// archiving of links that are missing artifacts.
package worker

import (
	"context"
	"time"
)

// Every runs fn, then waits the full interval, and repeats until ctx is done.
func Every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(ctx)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
