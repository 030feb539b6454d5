// Package scheduler drives the engine's periodic loops (heartbeat, restart,
// state sync) at a fixed rate. Each tick's handler runs to completion before
// the next interval is measured, and the wait before the next tick is
// shortened by however long the handler took — so a slow tick doesn't drift
// the schedule, matching the delay() coroutine in the original Python
// engine. gocron (used by the teacher for cron-expression backup schedules)
// doesn't fit here: these loops run at a fixed sub-minute cadence with
// compensation for handler duration, not calendar-based cron expressions.
package scheduler

import (
	"context"
	"time"
)

// Run runs fn every interval, starting immediately, until ctx is
// cancelled. The next tick fires `interval` after the *start* of the
// previous one, not `interval` after it finished — so a handler that takes
// longer than interval causes the next tick to fire immediately rather than
// stacking up a backlog.
func Run(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	var lastStart time.Time

	for {
		if !lastStart.IsZero() {
			elapsed := time.Since(lastStart)
			wait := interval - elapsed
			if wait < 0 {
				wait = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		lastStart = time.Now()
		fn(ctx)
	}
}
