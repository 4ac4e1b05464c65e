package sweep

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoSources is returned when the engine is started with no message source
// at all (no export and no live access).
var ErrNoSources = errors.New("no message source available")

// RateLimitError is a throttling response from the remote API carrying the
// server-specified wait.  Retryable after Wait.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, wait %s", e.Wait)
}

// TransientError wraps a fault that is worth retrying with backoff (network
// errors, internal server errors).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// AuthError wraps an authentication or permission fault.  It is never
// retried: the affected chat is aborted and deletion continues elsewhere.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "auth: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// retryable reports whether the deletion attempt may be repeated, and the
// server-mandated wait, if any.
func retryable(err error) (wait time.Duration, ok bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.Wait, true
	}
	var te *TransientError
	if errors.As(err, &te) {
		return 0, true
	}
	return 0, false
}

func isAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
