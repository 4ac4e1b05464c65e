package sweep

import (
	"errors"
	"reflect"
	"testing"
)

func TestReport_Summary(t *testing.T) {
	r := NewReport()
	res := func(chatID, id int64, o Outcome, err error) Result {
		return Result{
			Candidate: Candidate{Message: Message{ChatID: chatID, ID: id, ChatTitle: "chat"}},
			Outcome:   o,
			Err:       err,
		}
	}
	r.Add(res(1, 10, Deleted, nil))
	r.Add(res(1, 11, Skipped, errAlreadyGone))
	r.Add(res(1, 12, Failed, errors.New("boom")))
	r.Add(res(2, 20, Deleted, nil))
	r.Add(res(2, 21, Cancelled, errCancelled))
	r.AddRetry()
	r.AddRetry()

	s := r.Summary()

	if s.Total != 5 {
		t.Errorf("Total = %d, want 5", s.Total)
	}
	if got := s.Deleted + s.Skipped + s.Failed + s.Cancelled; got != s.Total {
		t.Errorf("outcomes sum to %d, want Total %d", got, s.Total)
	}
	if s.Deleted != 2 || s.Skipped != 1 || s.Failed != 1 || s.Cancelled != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.Retries != 2 {
		t.Errorf("Retries = %d, want 2", s.Retries)
	}
	want := []ChatStats{
		{ChatID: 1, Title: "chat", Candidates: 3, Deleted: 1, Skipped: 1, Failed: 1},
		{ChatID: 2, Title: "chat", Candidates: 2, Deleted: 1, Cancelled: 1},
	}
	if !reflect.DeepEqual(s.Chats, want) {
		t.Errorf("Chats = %+v, want %+v", s.Chats, want)
	}
	if len(s.Errors) != 1 || s.Errors[0].MessageID != 12 || s.Errors[0].Err != "boom" {
		t.Errorf("Errors = %+v, want one entry for message 12", s.Errors)
	}
}

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		o    Outcome
		want string
	}{
		{Deleted, "deleted"},
		{Skipped, "skipped"},
		{Failed, "failed"},
		{Cancelled, "cancelled"},
		{Outcome(42), "Outcome(42)"},
	}
	for _, tt := range tests {
		if got := tt.o.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestFaults(t *testing.T) {
	t.Run("rate limit is retryable with wait", func(t *testing.T) {
		wait, ok := retryable(&RateLimitError{Wait: 42})
		if !ok || wait != 42 {
			t.Errorf("retryable() = (%v, %v), want (42, true)", wait, ok)
		}
	})
	t.Run("transient is retryable without wait", func(t *testing.T) {
		wait, ok := retryable(&TransientError{Err: errors.New("x")})
		if !ok || wait != 0 {
			t.Errorf("retryable() = (%v, %v), want (0, true)", wait, ok)
		}
	})
	t.Run("auth is not retryable", func(t *testing.T) {
		err := &AuthError{Err: errors.New("x")}
		if _, ok := retryable(err); ok {
			t.Error("auth error must not be retryable")
		}
		if !isAuth(err) {
			t.Error("isAuth() = false, want true")
		}
	})
	t.Run("plain error is not retryable", func(t *testing.T) {
		if _, ok := retryable(errors.New("x")); ok {
			t.Error("plain error must not be retryable")
		}
	})
}
