package mtp

import (
	"strings"

	"github.com/gotd/contrib/storage"
	"github.com/gotd/td/tg"
)

type FilterFunc func(storage.Peer) (ent Entity, ok bool)

// FilterChat matches chats and non-broadcast channels.
func FilterChat() FilterFunc {
	return func(peer storage.Peer) (Entity, bool) {
		if peer.Chat != nil {
			return peer.Chat, true
		} else if peer.Channel != nil && !peer.Channel.Broadcast {
			return peer.Channel, true
		}
		return nil, false
	}
}

// FilterChannel matches broadcast channels.
func FilterChannel() FilterFunc {
	return func(peer storage.Peer) (Entity, bool) {
		if peer.Channel != nil && peer.Channel.Broadcast {
			return peer.Channel, true
		}
		return nil, false
	}
}

// FilterUser matches private dialogs, excluding the account owner's saved
// messages and deleted accounts.
func FilterUser() FilterFunc {
	return func(peer storage.Peer) (Entity, bool) {
		if peer.User == nil || peer.User.Self || peer.User.Deleted {
			return nil, false
		}
		return userEntity{peer.User}, true
	}
}

// FilterAny matches every dialog kind.
func FilterAny() FilterFunc {
	chats, channels, users := FilterChat(), FilterChannel(), FilterUser()
	return func(peer storage.Peer) (Entity, bool) {
		for _, f := range []FilterFunc{chats, channels, users} {
			if ent, ok := f(peer); ok {
				return ent, true
			}
		}
		return nil, false
	}
}

// userEntity adapts tg.User to the Entity interface (users have names, not
// titles).
type userEntity struct {
	*tg.User
}

func (u userEntity) GetTitle() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}
