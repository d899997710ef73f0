package app

import (
	"errors"
	"time"

	"annotator3d/pkg/storage"
)

const (
	renderAttempts = 5
	renderBackoff  = 50 * time.Millisecond
)

// renderWithRetry runs fn until it succeeds or the attempts are exhausted.
// Only a missing blob is retried: a referenced file may be mid-replacement by
// a concurrent request, so the caller refetches and serializes again. Any
// other error propagates immediately.
func renderWithRetry[T any](fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 0; attempt < renderAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(renderBackoff)
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return zero, err
		}
	}
	return zero, ErrTryAgainLater
}
