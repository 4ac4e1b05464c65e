package mtp

import (
	"testing"

	"github.com/gotd/contrib/storage"
	"github.com/gotd/td/tg"
)

func TestFilters(t *testing.T) {
	var (
		peerChat      = storage.Peer{Chat: &tg.Chat{ID: 1, Title: "group"}}
		peerMegagroup = storage.Peer{Channel: &tg.Channel{ID: 2, Title: "mega"}}
		peerBroadcast = storage.Peer{Channel: &tg.Channel{ID: 3, Title: "news", Broadcast: true}}
		peerUser      = storage.Peer{User: &tg.User{ID: 4, FirstName: "Bob"}}
		peerSelf      = storage.Peer{User: &tg.User{ID: 5, Self: true}}
		peerDeleted   = storage.Peer{User: &tg.User{ID: 6, Deleted: true}}
	)
	tests := []struct {
		name   string
		filter FilterFunc
		peer   storage.Peer
		wantOK bool
	}{
		{"chat matches chat", FilterChat(), peerChat, true},
		{"chat matches megagroup", FilterChat(), peerMegagroup, true},
		{"chat rejects broadcast", FilterChat(), peerBroadcast, false},
		{"chat rejects user", FilterChat(), peerUser, false},
		{"channel matches broadcast", FilterChannel(), peerBroadcast, true},
		{"channel rejects megagroup", FilterChannel(), peerMegagroup, false},
		{"user matches user", FilterUser(), peerUser, true},
		{"user rejects self", FilterUser(), peerSelf, false},
		{"user rejects deleted", FilterUser(), peerDeleted, false},
		{"any matches chat", FilterAny(), peerChat, true},
		{"any matches broadcast", FilterAny(), peerBroadcast, true},
		{"any matches user", FilterAny(), peerUser, true},
		{"any rejects self", FilterAny(), peerSelf, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := tt.filter(tt.peer); ok != tt.wantOK {
				t.Errorf("filter ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

func Test_userEntity_GetTitle(t *testing.T) {
	tests := []struct {
		name string
		user *tg.User
		want string
	}{
		{"full name", &tg.User{FirstName: "Bob", LastName: "Smith"}, "Bob Smith"},
		{"first only", &tg.User{FirstName: "Bob"}, "Bob"},
		{"username fallback", &tg.User{Username: "bob42"}, "bob42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (userEntity{tt.user}).GetTitle(); got != tt.want {
				t.Errorf("GetTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}
