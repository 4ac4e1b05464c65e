// Package export builds a queryable index over a Telegram Desktop JSON
// export (result.json).  The document can exceed 100 MB, so it is never
// materialized: the index streams it with the jx decoder, one message at a
// time, and keeps only chat metadata in memory.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/rusq/dlog"

	"github.com/rusq/sweepmychat/internal/sweep"
)

// ErrFormat is returned when the top-level structure of the document is
// unrecognizable: not JSON, or missing the chats list.  Anything less than
// that (a bad chat, a bad message) is skipped, not fatal: exports made under
// time pressure are routinely incomplete.
var ErrFormat = errors.New("unrecognizable export format")

const decodeBufSz = 512 * 1024

// Index is a read-only view over an export file.  It is built with one
// skimming pass and re-streams the file per chat, so per-chat message
// sequences are restartable and memory stays bounded by a single message.
type Index struct {
	path    string
	keepAll bool

	chats  []sweep.Chat
	counts map[int64]int

	userID    int64
	firstName string
}

type Option func(*Index)

// WithAllSenders indexes incoming messages too.  By default only the
// account owner's outgoing messages are indexed, since those are the only
// ones that can be deleted for everyone.
func WithAllSenders() Option {
	return func(idx *Index) {
		idx.keepAll = true
	}
}

// Open skims the export file, validating its top-level structure and
// collecting the chat list.
func Open(path string, opts ...Option) (*Index, error) {
	idx := &Index{path: path, counts: make(map[int64]int)}
	for _, opt := range opts {
		opt(idx)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := idx.skim(jx.Decode(f, decodeBufSz)); err != nil {
		return nil, err
	}
	return idx, nil
}

// Chats returns the indexed chats in document order.
func (idx *Index) Chats(_ context.Context) ([]sweep.Chat, error) {
	return append([]sweep.Chat(nil), idx.chats...), nil
}

// Messages streams the messages of one chat in document order.  It re-reads
// the file, decoding only the requested chat's message array, and is
// restartable.  For a chat not present in the export it calls fn zero times.
func (idx *Index) Messages(ctx context.Context, chatID int64, fn func(sweep.Message) error) error {
	if _, ok := idx.counts[chatID]; !ok {
		return nil
	}
	f, err := os.Open(idx.path)
	if err != nil {
		return err
	}
	defer f.Close()

	title := idx.title(chatID)
	return idx.walkChats(jx.Decode(f, decodeBufSz), func(d *jx.Decoder, chat chatMeta) error {
		if chat.id != chatID {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, ok, err := idx.decodeMessage(d)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			m.ChatID = chatID
			m.ChatTitle = title
			return fn(m)
		})
	})
}

// Count returns the number of indexed messages in a chat.
func (idx *Index) Count(chatID int64) int { return idx.counts[chatID] }

func (idx *Index) title(chatID int64) string {
	for _, c := range idx.chats {
		if c.ID == chatID {
			return c.Title
		}
	}
	return ""
}

// skim walks the whole document once: picks up personal_information for
// outgoing-message detection, the chat list, and per-chat message counts.
func (idx *Index) skim(d *jx.Decoder) error {
	sawList := false
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "personal_information":
			return idx.decodePersonalInfo(d)
		case "chats":
			if d.Next() != jx.Object {
				return d.Skip()
			}
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "list" || d.Next() != jx.Array {
					return d.Skip()
				}
				sawList = true
				return idx.decodeChatList(d)
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFormat, err)
	}
	if !sawList {
		return fmt.Errorf("%w: no chat list", ErrFormat)
	}
	return nil
}

func (idx *Index) decodePersonalInfo(d *jx.Decoder) error {
	if d.Next() != jx.Object {
		return d.Skip()
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "user_id":
			id, ok := decodeInt(d)
			if !ok {
				return nil
			}
			idx.userID = id
		case "first_name":
			if d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			if err != nil {
				return err
			}
			idx.firstName = s
		default:
			return d.Skip()
		}
		return nil
	})
}

func (idx *Index) decodeChatList(d *jx.Decoder) error {
	return d.Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.Object {
			dlog.Debugf("export: skipping non-object chat entry")
			return d.Skip()
		}
		var chat chatMeta
		err := d.Obj(func(d *jx.Decoder, key string) error {
			return chat.field(d, key, func(d *jx.Decoder) error {
				if !chat.hasID {
					// walkChats can not stream such a chat, so the index
					// must not admit it either.
					chat.lateID = true
				}
				// count without decoding full messages.
				return d.Arr(func(d *jx.Decoder) error {
					chat.count++
					return d.Skip()
				})
			})
		})
		if err != nil {
			return err
		}
		if !chat.hasID || chat.lateID {
			dlog.Debugf("export: skipping chat with missing or misplaced id (%q)", chat.name)
			return nil
		}
		idx.chats = append(idx.chats, sweep.Chat{ID: chat.id, Title: chat.name, Type: chat.typ})
		idx.counts[chat.id] = chat.count
		return nil
	})
}

// walkChats navigates to chats.list and calls fn with the decoder positioned
// at each chat's messages array.  fn must consume or skip the array.
func (idx *Index) walkChats(d *jx.Decoder, fn func(d *jx.Decoder, chat chatMeta) error) error {
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "chats" || d.Next() != jx.Object {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "list" || d.Next() != jx.Array {
				return d.Skip()
			}
			return d.Arr(func(d *jx.Decoder) error {
				if d.Next() != jx.Object {
					return d.Skip()
				}
				var chat chatMeta
				return d.Obj(func(d *jx.Decoder, key string) error {
					return chat.field(d, key, func(d *jx.Decoder) error {
						// relies on the export placing the chat id before
						// the message array; telegram desktop always does.
						// a chat violating that is treated as malformed.
						if !chat.hasID {
							dlog.Debugf("export: messages before chat id, skipping chat")
							return d.Skip()
						}
						return fn(d, chat)
					})
				})
			})
		})
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("export read: %w", err)
	}
	return err
}

type chatMeta struct {
	id     int64
	hasID  bool
	lateID bool // messages array seen before the id key
	name   string
	typ    string
	count  int
}

// field dispatches one chat object key.  onMessages is called with the
// decoder positioned at the messages array.
func (c *chatMeta) field(d *jx.Decoder, key string, onMessages func(d *jx.Decoder) error) error {
	switch key {
	case "id":
		if id, ok := decodeInt(d); ok {
			c.id, c.hasID = id, true
		}
		return nil
	case "name":
		if d.Next() != jx.String {
			return d.Skip()
		}
		s, err := d.Str()
		if err != nil {
			return err
		}
		c.name = s
		return nil
	case "type":
		if d.Next() != jx.String {
			return d.Skip()
		}
		s, err := d.Str()
		if err != nil {
			return err
		}
		c.typ = s
		return nil
	case "messages":
		if d.Next() != jx.Array {
			return d.Skip()
		}
		return onMessages(d)
	default:
		return d.Skip()
	}
}

// rawMessage is the capability-checked view of a message record: each field
// may be absent, and absence degrades, never crashes.
type rawMessage struct {
	id      int64
	hasID   bool
	date    time.Time
	hasDate bool
	text    string
	typ     string
	from    string
	fromID  string
	out     bool
	hasOut  bool
}

// decodeMessage decodes one message object.  ok is false for records that
// are not deletable candidates: service messages, records missing id or
// timestamp, and (unless WithAllSenders) incoming messages.
func (idx *Index) decodeMessage(d *jx.Decoder) (sweep.Message, bool, error) {
	if d.Next() != jx.Object {
		return sweep.Message{}, false, d.Skip()
	}
	var raw rawMessage
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			if id, ok := decodeInt(d); ok {
				raw.id, raw.hasID = id, true
			}
			return nil
		case "type":
			return decodeStrInto(d, &raw.typ)
		case "from":
			return decodeStrInto(d, &raw.from)
		case "from_id":
			return decodeStrInto(d, &raw.fromID)
		case "out":
			if d.Next() != jx.Bool {
				return d.Skip()
			}
			b, err := d.Bool()
			if err != nil {
				return err
			}
			raw.out, raw.hasOut = b, true
			return nil
		case "date_unixtime":
			s, ok := decodeScalarStr(d)
			if !ok {
				return nil
			}
			if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
				raw.date, raw.hasDate = time.Unix(ts, 0), true
			}
			return nil
		case "date":
			if raw.hasDate { // date_unixtime takes precedence
				return d.Skip()
			}
			s, ok := decodeScalarStr(d)
			if !ok {
				return nil
			}
			if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.Local); err == nil {
				raw.date, raw.hasDate = t, true
			}
			return nil
		case "text":
			s, err := decodeText(d)
			if err != nil {
				return err
			}
			raw.text = s
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return sweep.Message{}, false, err
	}
	if !raw.hasID || !raw.hasDate || raw.typ == "service" {
		return sweep.Message{}, false, nil
	}
	if !idx.keepAll && !idx.outgoing(raw) {
		return sweep.Message{}, false, nil
	}
	return sweep.Message{ID: raw.id, Date: raw.date, Text: raw.text}, true, nil
}

// outgoing detects the account owner's own messages, trying, in order: the
// explicit out flag, from_id against the export's user id, and the sender
// name against the owner's first name.
func (idx *Index) outgoing(raw rawMessage) bool {
	if raw.hasOut {
		return raw.out
	}
	if idx.userID != 0 && raw.fromID != "" {
		uid := strconv.FormatInt(idx.userID, 10)
		return raw.fromID == "user"+uid || raw.fromID == uid
	}
	return idx.firstName != "" && raw.from == idx.firstName
}

// decodeText flattens the text field, which telegram emits either as a plain
// string or as an array of strings and entity objects.
func decodeText(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Array:
		var out []byte
		err := d.Arr(func(d *jx.Decoder) error {
			switch d.Next() {
			case jx.String:
				s, err := d.Str()
				if err != nil {
					return err
				}
				out = append(out, s...)
				return nil
			case jx.Object:
				return d.Obj(func(d *jx.Decoder, key string) error {
					if key != "text" || d.Next() != jx.String {
						return d.Skip()
					}
					s, err := d.Str()
					if err != nil {
						return err
					}
					out = append(out, s...)
					return nil
				})
			default:
				return d.Skip()
			}
		})
		return string(out), err
	default:
		return "", d.Skip()
	}
}

// decodeInt reads an integer that may be encoded as a number or a string.
func decodeInt(d *jx.Decoder) (int64, bool) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, false
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		_ = d.Skip()
		return 0, false
	}
}

// decodeScalarStr reads a value that may be a string or a bare number, as a
// string.
func decodeScalarStr(d *jx.Decoder) (string, bool) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return "", false
		}
		return s, true
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", false
		}
		return n.String(), true
	default:
		_ = d.Skip()
		return "", false
	}
}

func decodeStrInto(d *jx.Decoder, dst *string) error {
	if d.Next() != jx.String {
		return d.Skip()
	}
	s, err := d.Str()
	if err != nil {
		return err
	}
	*dst = s
	return nil
}

var _ sweep.Source = (*Index)(nil)
