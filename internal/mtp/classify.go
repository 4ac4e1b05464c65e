package mtp

import (
	"context"
	"errors"
	"time"

	"github.com/gotd/td/tgerr"

	"github.com/rusq/sweepmychat/internal/sweep"
)

// classify maps a telegram RPC or transport error onto the engine's fault
// kinds.  Context errors pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &sweep.RateLimitError{Wait: wait}
	}
	var rpc *tgerr.Error
	if errors.As(err, &rpc) {
		switch {
		case rpc.Code == 401 || rpc.Code == 403:
			return &sweep.AuthError{Err: err}
		case rpc.Code >= 500:
			return &sweep.TransientError{Err: err}
		}
		return err
	}
	// anything that is not an RPC error is a transport fault.
	return &sweep.TransientError{Err: err}
}

// retryWait reports whether the classified error is retryable, with the
// server-mandated wait, if any.
func retryWait(err error) (time.Duration, bool) {
	var rle *sweep.RateLimitError
	if errors.As(err, &rle) {
		return rle.Wait, true
	}
	var te *sweep.TransientError
	if errors.As(err, &te) {
		return 0, true
	}
	return 0, false
}
