package build

import (
	"time"
)

// Retry calls fn up to tries times, sleeping durationBetweenAttempts between
// attempts, returning nil the first time fn succeeds. If fn never succeeds
// the last error it returned is passed back to the caller.
func Retry(tries int, durationBetweenAttempts time.Duration, fn func() error) (err error) {
	for i := 1; i < tries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		time.Sleep(durationBetweenAttempts)
	}
	return fn()
}
