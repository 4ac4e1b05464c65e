package sweep

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

// fakeSource is an in-memory Source for tests.
type fakeSource struct {
	chats    []Chat
	messages map[int64][]Message
	chatsErr error
	msgErr   map[int64]error // fail this chat's stream after its messages
}

func (f *fakeSource) Chats(_ context.Context) ([]Chat, error) {
	if f.chatsErr != nil {
		return nil, f.chatsErr
	}
	return f.chats, nil
}

func (f *fakeSource) Messages(_ context.Context, chatID int64, fn func(Message) error) error {
	for _, m := range f.messages[chatID] {
		if err := fn(m); err != nil {
			return err
		}
	}
	if f.msgErr != nil {
		return f.msgErr[chatID]
	}
	return nil
}

func oldMsg(chatID, id int64, text string) Message {
	return Message{ChatID: chatID, ID: id, Date: tCutoff.Add(-time.Hour), Text: text}
}

func mustPredicate(t *testing.T, keywords []string) *Predicate {
	t.Helper()
	p, err := NewPredicate(tCutoff, keywords, false, true)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func collect(t *testing.T, s *Selector, ctx context.Context) []Candidate {
	t.Helper()
	var got []Candidate
	if err := s.Select(ctx, func(c Candidate) error {
		got = append(got, c)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	return got
}

func candIDs(cands []Candidate) []int64 {
	var ids []int64
	for _, c := range cands {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestSelector_Select(t *testing.T) {
	chatA := Chat{ID: 1, Title: "A"}
	chatB := Chat{ID: 2, Title: "B"}
	src := &fakeSource{
		chats: []Chat{chatA, chatB},
		messages: map[int64][]Message{
			1: {
				oldMsg(1, 10, "wipe me"),
				{ChatID: 1, ID: 11, Date: tCutoff.Add(time.Hour), Text: "too new"},
				oldMsg(1, 12, "and me"),
				oldMsg(1, 13, "me too"),
			},
			2: {
				{ChatID: 2, ID: 20, Date: tCutoff.Add(time.Minute), Text: "keep"},
			},
		},
	}
	s := NewSelector(mustPredicate(t, nil), src)
	got := collect(t, s, context.Background())
	want := []int64{10, 12, 13}
	if !reflect.DeepEqual(candIDs(got), want) {
		t.Errorf("Select() ids = %v, want %v", candIDs(got), want)
	}
	for _, c := range got {
		if c.Reason != ByAge {
			t.Errorf("message %d: reason = %s, want age", c.ID, c.Reason)
		}
		if c.ChatID != 1 {
			t.Errorf("message %d: chat = %d, want 1", c.ID, c.ChatID)
		}
	}
}

func TestSelector_dedup(t *testing.T) {
	// the same message is present in the export and in the live history:
	// the earlier source wins and the candidate is yielded exactly once.
	chat := Chat{ID: 1, Title: "A"}
	exported := &fakeSource{
		chats:    []Chat{chat},
		messages: map[int64][]Message{1: {oldMsg(1, 10, "dupe"), oldMsg(1, 11, "export only")}},
	}
	live := &fakeSource{
		chats:    []Chat{chat},
		messages: map[int64][]Message{1: {oldMsg(1, 10, "dupe"), oldMsg(1, 12, "live only")}},
	}
	s := NewSelector(mustPredicate(t, nil), exported, live)
	got := collect(t, s, context.Background())
	want := []int64{10, 11, 12}
	if !reflect.DeepEqual(candIDs(got), want) {
		t.Errorf("Select() ids = %v, want %v", candIDs(got), want)
	}
}

func TestSelector_sourceError(t *testing.T) {
	// a source failing mid-scan must not abort the other chats.
	chatA := Chat{ID: 1, Title: "A"}
	chatB := Chat{ID: 2, Title: "B"}
	src := &fakeSource{
		chats: []Chat{chatA, chatB},
		messages: map[int64][]Message{
			1: {oldMsg(1, 10, "x")},
			2: {oldMsg(2, 20, "y")},
		},
		msgErr: map[int64]error{1: errors.New("boom")},
	}
	s := NewSelector(mustPredicate(t, nil), src)
	var skipped []int64
	s.OnSourceError = func(chat Chat, err error) {
		skipped = append(skipped, chat.ID)
	}
	got := collect(t, s, context.Background())
	// chat 1's messages before the fault are still yielded.
	if want := []int64{10, 20}; !reflect.DeepEqual(candIDs(got), want) {
		t.Errorf("Select() ids = %v, want %v", candIDs(got), want)
	}
	if !reflect.DeepEqual(skipped, []int64{1}) {
		t.Errorf("OnSourceError chats = %v, want [1]", skipped)
	}
}

func TestSelector_consumerError(t *testing.T) {
	// an error from the consumer stops the scan, it is not a source fault.
	src := &fakeSource{
		chats:    []Chat{{ID: 1}},
		messages: map[int64][]Message{1: {oldMsg(1, 10, "x"), oldMsg(1, 11, "y")}},
	}
	s := NewSelector(mustPredicate(t, nil), src)
	wantErr := errors.New("stop")
	var n int
	err := s.Select(context.Background(), func(Candidate) error {
		n++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Select() error = %v, want %v", err, wantErr)
	}
	if n != 1 {
		t.Errorf("consumer called %d times, want 1", n)
	}
}

func TestSelector_Chats(t *testing.T) {
	tests := []struct {
		name    string
		sources []Source
		want    []Chat
		wantErr bool
	}{
		{
			"merge keeps first appearance order",
			[]Source{
				&fakeSource{chats: []Chat{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}}},
				&fakeSource{chats: []Chat{{ID: 2, Title: "B live"}, {ID: 3, Title: "C"}}},
			},
			[]Chat{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}, {ID: 3, Title: "C"}},
			false,
		},
		{
			"first source failure falls through to the next",
			[]Source{
				&fakeSource{chatsErr: errors.New("corrupt")},
				&fakeSource{chats: []Chat{{ID: 3, Title: "C"}}},
			},
			[]Chat{{ID: 3, Title: "C"}},
			false,
		},
		{
			"sole source failure is fatal",
			[]Source{&fakeSource{chatsErr: errors.New("corrupt")}},
			nil,
			true,
		},
		{
			"no sources",
			nil,
			nil,
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSelector(mustPredicate(t, nil), tt.sources...)
			got, err := s.Chats(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Chats() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Chats() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelector_chatTitleFill(t *testing.T) {
	src := &fakeSource{
		chats:    []Chat{{ID: 1, Title: "Work"}},
		messages: map[int64][]Message{1: {oldMsg(1, 10, "x")}},
	}
	s := NewSelector(mustPredicate(t, nil), src)
	got := collect(t, s, context.Background())
	if len(got) != 1 || got[0].ChatTitle != "Work" {
		t.Errorf("Select() = %v, want one candidate titled Work", got)
	}
}
