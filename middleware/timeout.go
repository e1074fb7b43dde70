package middleware

import (
	"context"
	"time"

	"github.com/lumenly/coursegen/job"
)

// Timeout returns middleware that bounds job execution to d. When the
// deadline is exceeded the context is cancelled and the orchestrator
// returns context.DeadlineExceeded. A non-positive d disables the bound.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
