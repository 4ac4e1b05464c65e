package mtp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gotd/td/tgerr"

	"github.com/rusq/sweepmychat/internal/sweep"
)

func Test_classify(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if err := classify(nil); err != nil {
			t.Errorf("classify(nil) = %v", err)
		}
	})
	t.Run("context errors pass through", func(t *testing.T) {
		for _, src := range []error{context.Canceled, context.DeadlineExceeded} {
			if err := classify(src); !errors.Is(err, src) {
				t.Errorf("classify(%v) = %v", src, err)
			}
		}
	})
	t.Run("flood wait", func(t *testing.T) {
		err := classify(tgerr.New(420, "FLOOD_WAIT_13"))
		var rle *sweep.RateLimitError
		if !errors.As(err, &rle) {
			t.Fatalf("classify() = %v, want RateLimitError", err)
		}
		if rle.Wait != 13*time.Second {
			t.Errorf("Wait = %s, want 13s", rle.Wait)
		}
	})
	t.Run("auth errors", func(t *testing.T) {
		for _, code := range []int{401, 403} {
			err := classify(tgerr.New(code, "CHAT_WRITE_FORBIDDEN"))
			var ae *sweep.AuthError
			if !errors.As(err, &ae) {
				t.Errorf("classify(code %d) = %v, want AuthError", code, err)
			}
		}
	})
	t.Run("server errors are transient", func(t *testing.T) {
		err := classify(tgerr.New(500, "INTERNAL"))
		var te *sweep.TransientError
		if !errors.As(err, &te) {
			t.Errorf("classify() = %v, want TransientError", err)
		}
	})
	t.Run("other rpc errors pass through", func(t *testing.T) {
		src := tgerr.New(400, "MESSAGE_ID_INVALID")
		if err := classify(src); !errors.Is(err, src) {
			t.Errorf("classify() = %v, want the original", err)
		}
	})
	t.Run("transport faults are transient", func(t *testing.T) {
		err := classify(errors.New("connection reset"))
		var te *sweep.TransientError
		if !errors.As(err, &te) {
			t.Errorf("classify() = %v, want TransientError", err)
		}
	})
}

func Test_retryWait(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantWait time.Duration
		wantOK   bool
	}{
		{"rate limit", &sweep.RateLimitError{Wait: 5 * time.Second}, 5 * time.Second, true},
		{"transient", &sweep.TransientError{Err: errors.New("x")}, 0, true},
		{"auth", &sweep.AuthError{Err: errors.New("x")}, 0, false},
		{"plain", errors.New("x"), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wait, ok := retryWait(tt.err)
			if wait != tt.wantWait || ok != tt.wantOK {
				t.Errorf("retryWait() = (%s, %v), want (%s, %v)", wait, ok, tt.wantWait, tt.wantOK)
			}
		})
	}
}
