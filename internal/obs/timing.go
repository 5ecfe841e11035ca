// Package obs holds small logging helpers shared by the pipeline and the API.
package obs

import (
	"context"
	"log"
	"time"
)

type ctxKey string

const RunIDKey ctxKey = "run_id"

// WithRunID tags ctx so timing lines can be correlated with a run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

// RunID returns the run tagged on ctx, if any.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(RunIDKey).(string)
	return id
}

// Time logs the duration of op when the returned func runs. Pass a pointer to the
// caller's error to have failures logged alongside.
func Time(ctx context.Context, op string) func(errp *error) time.Duration {
	start := time.Now()
	runID := RunID(ctx)

	return func(errp *error) time.Duration {
		dur := time.Since(start)
		if errp != nil && *errp != nil {
			log.Printf("run_id=%s op=%s dur=%dms err=%v", runID, op, dur.Milliseconds(), *errp)
			return dur
		}
		log.Printf("run_id=%s op=%s dur=%dms", runID, op, dur.Milliseconds())
		return dur
	}
}
