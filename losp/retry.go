package losp

import "context"

// Retry runs an operation until its return code no longer satisfies While
// or MaxAttempts is reached. The first attempt is unconditional. No delay
// is inserted between attempts.
type Retry struct {
	MaxAttempts int
	While       func(ReturnCode) bool
}

// WhileBusy returns a Retry that polls while the instrument reports BUSY.
func WhileBusy(maxAttempts int) Retry {
	return Retry{
		MaxAttempts: maxAttempts,
		While:       func(rc ReturnCode) bool { return rc == ReturnBusy },
	}
}

// Do calls fn with attempt numbers starting at 1. It returns the number of
// attempts made and the last return code. An error from fn, or a cancelled
// ctx between attempts, stops the loop and is returned.
func (r Retry) Do(ctx context.Context, fn func(attempt int) (ReturnCode, error)) (int, ReturnCode, error) {
	limit := max(r.MaxAttempts, 1)
	last := ReturnUnknown
	for attempt := 1; attempt <= limit; attempt++ {
		if attempt > 1 {
			if err := ctx.Err(); err != nil {
				return attempt - 1, last, err
			}
		}
		rc, err := fn(attempt)
		if err != nil {
			return attempt, rc, err
		}
		last = rc
		if r.While == nil || !r.While(rc) {
			return attempt, rc, nil
		}
	}
	return limit, last, nil
}
