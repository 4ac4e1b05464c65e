package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rusq/sweepmychat/internal/sweep"
)

const testExport = `{
	"about": "Here is the data you requested.",
	"personal_information": {
		"user_id": 111,
		"first_name": "Alice",
		"last_name": "P"
	},
	"chats": {
		"about": "This page lists all chats.",
		"list": [
			{
				"name": "Work",
				"type": "personal_chat",
				"id": 1,
				"messages": [
					{
						"id": 10,
						"type": "message",
						"date": "2024-01-15T10:00:00",
						"date_unixtime": "1705312800",
						"from": "Alice",
						"from_id": "user111",
						"text": "standup at ten"
					},
					{
						"id": 11,
						"type": "message",
						"date_unixtime": "1705312860",
						"from": "Bob",
						"from_id": "user222",
						"text": "ok"
					},
					{
						"id": 12,
						"type": "service",
						"date_unixtime": "1705312920",
						"actor": "Alice",
						"action": "pin_message",
						"text": ""
					},
					{
						"id": 13,
						"type": "message",
						"date_unixtime": "1705313000",
						"from": "Alice",
						"from_id": "user111",
						"text": [
							"see ",
							{"type": "link", "text": "https://example.com"},
							" for details"
						]
					}
				]
			},
			{
				"name": "Broken",
				"type": "personal_chat",
				"messages": []
			},
			{
				"name": "Empty",
				"type": "private_group",
				"id": 3,
				"messages": []
			}
		]
	}
}`

func writeExport(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "result.json")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func msgs(t *testing.T, idx *Index, chatID int64) []sweep.Message {
	t.Helper()
	var got []sweep.Message
	err := idx.Messages(context.Background(), chatID, func(m sweep.Message) error {
		got = append(got, m)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestOpen(t *testing.T) {
	idx, err := Open(writeExport(t, testExport))
	if err != nil {
		t.Fatal(err)
	}
	chats, err := idx.Chats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// the chat without an id is malformed and dropped.
	want := []sweep.Chat{
		{ID: 1, Title: "Work", Type: "personal_chat"},
		{ID: 3, Title: "Empty", Type: "private_group"},
	}
	if !reflect.DeepEqual(chats, want) {
		t.Errorf("Chats() = %v, want %v", chats, want)
	}
	if n := idx.Count(1); n != 4 {
		t.Errorf("Count(1) = %d, want 4", n)
	}
	if n := idx.Count(3); n != 0 {
		t.Errorf("Count(3) = %d, want 0", n)
	}
}

func TestOpen_badFormat(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", "this is not an export"},
		{"array root", "[1,2,3]"},
		{"no chat list", `{"personal_information":{"user_id":1}}`},
		{"chats not an object", `{"chats": 42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(writeExport(t, tt.doc))
			if !errors.Is(err, ErrFormat) {
				t.Errorf("Open() error = %v, want ErrFormat", err)
			}
		})
	}
}

func TestIndex_Messages(t *testing.T) {
	idx, err := Open(writeExport(t, testExport))
	if err != nil {
		t.Fatal(err)
	}
	got := msgs(t, idx, 1)

	// incoming (11) and service (12) records are not candidates.
	want := []sweep.Message{
		{
			ChatID:    1,
			ID:        10,
			Date:      time.Unix(1705312800, 0),
			Text:      "standup at ten",
			ChatTitle: "Work",
		},
		{
			ChatID:    1,
			ID:        13,
			Date:      time.Unix(1705313000, 0),
			Text:      "see https://example.com for details",
			ChatTitle: "Work",
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Messages(1) = %v, want %v", got, want)
	}
}

func TestIndex_Messages_restartable(t *testing.T) {
	idx, err := Open(writeExport(t, testExport))
	if err != nil {
		t.Fatal(err)
	}
	first := msgs(t, idx, 1)
	second := msgs(t, idx, 1)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("second pass = %v, want the same as first %v", second, first)
	}
}

func TestIndex_Messages_absentChat(t *testing.T) {
	idx, err := Open(writeExport(t, testExport))
	if err != nil {
		t.Fatal(err)
	}
	if got := msgs(t, idx, 404); len(got) != 0 {
		t.Errorf("Messages(404) yielded %v, want nothing", got)
	}
}

func TestIndex_Messages_allSenders(t *testing.T) {
	idx, err := Open(writeExport(t, testExport), WithAllSenders())
	if err != nil {
		t.Fatal(err)
	}
	got := msgs(t, idx, 1)
	var ids []int64
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	// service records stay excluded even with all senders.
	if want := []int64{10, 11, 13}; !reflect.DeepEqual(ids, want) {
		t.Errorf("Messages(1) ids = %v, want %v", ids, want)
	}
}

func TestIndex_outgoing(t *testing.T) {
	tests := []struct {
		name string
		idx  Index
		raw  rawMessage
		want bool
	}{
		{"out flag true", Index{}, rawMessage{hasOut: true, out: true}, true},
		{"out flag false beats from_id", Index{userID: 111}, rawMessage{hasOut: true, out: false, fromID: "user111"}, false},
		{"from_id with user prefix", Index{userID: 111}, rawMessage{fromID: "user111"}, true},
		{"from_id bare", Index{userID: 111}, rawMessage{fromID: "111"}, true},
		{"from_id other user", Index{userID: 111}, rawMessage{fromID: "user222"}, false},
		{"name fallback", Index{firstName: "Alice"}, rawMessage{from: "Alice"}, true},
		{"name mismatch", Index{firstName: "Alice"}, rawMessage{from: "Bob"}, false},
		{"nothing to go by", Index{}, rawMessage{from: "Alice"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.idx.outgoing(tt.raw); got != tt.want {
				t.Errorf("outgoing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIndex_Messages_isoDateFallback(t *testing.T) {
	const doc = `{
		"chats": {"list": [
			{"id": 1, "name": "C", "type": "personal_chat", "messages": [
				{"id": 5, "type": "message", "date": "2024-01-15T10:00:00", "out": true, "text": "hi"}
			]}
		]}
	}`
	idx, err := Open(writeExport(t, doc))
	if err != nil {
		t.Fatal(err)
	}
	got := msgs(t, idx, 1)
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	want := time.Date(2024, 1, 15, 10, 0, 0, 0, time.Local)
	if !got[0].Date.Equal(want) {
		t.Errorf("Date = %s, want %s", got[0].Date, want)
	}
}

func TestOpen_idAfterMessages(t *testing.T) {
	// a chat whose id comes after its messages array can not be streamed per
	// chat; the index must not list it, so that Chats and Messages agree.
	const doc = `{
		"chats": {"list": [
			{"name": "Odd", "type": "personal_chat", "messages": [
				{"id": 90, "type": "message", "out": true, "date_unixtime": "1705312800", "text": "hi"}
			], "id": 9},
			{"id": 1, "name": "Fine", "type": "personal_chat", "messages": [
				{"id": 10, "type": "message", "out": true, "date_unixtime": "1705312800", "text": "ok"}
			]}
		]}
	}`
	idx, err := Open(writeExport(t, doc))
	if err != nil {
		t.Fatal(err)
	}
	chats, err := idx.Chats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []sweep.Chat{{ID: 1, Title: "Fine", Type: "personal_chat"}}
	if !reflect.DeepEqual(chats, want) {
		t.Errorf("Chats() = %v, want %v", chats, want)
	}
	if n := idx.Count(9); n != 0 {
		t.Errorf("Count(9) = %d, want 0 for an unstreamable chat", n)
	}
	if got := msgs(t, idx, 9); len(got) != 0 {
		t.Errorf("Messages(9) yielded %v, want nothing", got)
	}
}

func TestIndex_Messages_malformedRecords(t *testing.T) {
	// records without id or date degrade to being skipped.
	const doc = `{
		"chats": {"list": [
			{"id": 1, "name": "C", "type": "personal_chat", "messages": [
				{"type": "message", "out": true, "date_unixtime": "1705312800", "text": "no id"},
				{"id": 6, "type": "message", "out": true, "text": "no date"},
				{"id": 7, "type": "message", "out": true, "date_unixtime": "1705312800", "text": "good"}
			]}
		]}
	}`
	idx, err := Open(writeExport(t, doc))
	if err != nil {
		t.Fatal(err)
	}
	got := msgs(t, idx, 1)
	if len(got) != 1 || got[0].ID != 7 {
		t.Errorf("Messages(1) = %v, want only message 7", got)
	}
}
