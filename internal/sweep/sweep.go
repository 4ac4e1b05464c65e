// Package sweep implements the message selection and rate limited batch
// deletion engine.  It is deliberately unaware of where the messages come
// from: sources (a desktop export, the live API) feed it through the Source
// interface, and deletions go out through the Wiper interface.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rusq/dlog"
)

// Message is a single message as seen by the engine.  It is identified by the
// (ChatID, ID) pair and is never mutated once read from a source.
type Message struct {
	ChatID    int64
	ID        int64
	Date      time.Time
	Text      string
	ChatTitle string
}

// Chat is a grouping key for messages.  It owns no deletion state.
type Chat struct {
	ID    int64
	Title string
	Type  string
}

func (c Chat) String() string {
	if c.Title == "" {
		return fmt.Sprintf("Chat_%d", c.ID)
	}
	return c.Title
}

// Reason is the set of predicates that selected a message.
type Reason uint8

const (
	ByAge Reason = 1 << iota
	ByKeyword
)

func (r Reason) String() string {
	var ss []string
	if r&ByAge != 0 {
		ss = append(ss, "age")
	}
	if r&ByKeyword != 0 {
		ss = append(ss, "keyword")
	}
	if len(ss) == 0 {
		return "none"
	}
	return strings.Join(ss, "+")
}

// Candidate is a message selected for deletion.
type Candidate struct {
	Message
	Reason Reason
}

// Source produces chats and their messages.  Messages streams one chat's
// messages through fn; an export source is restartable, the live source is
// not.  A source returns no error and calls fn zero times for a chat it does
// not cover.
type Source interface {
	Chats(ctx context.Context) ([]Chat, error)
	Messages(ctx context.Context, chatID int64, fn func(Message) error) error
}

// Selector merges sources, filters messages through the predicate and yields
// candidates.  Sources are consulted in the order given: when the same
// (chat, message) pair is produced by more than one source, the earliest
// source wins, so an export entry suppresses its live duplicate.
type Selector struct {
	pred    *Predicate
	sources []Source

	// OnSourceError is invoked when a source fails mid-chat.  The failing
	// chat is skipped and the scan continues; the default logs the error.
	OnSourceError func(chat Chat, err error)
}

func NewSelector(pred *Predicate, sources ...Source) *Selector {
	return &Selector{
		pred:    pred,
		sources: sources,
		OnSourceError: func(chat Chat, err error) {
			dlog.Printf("SKIPPED: chat %d (%s): %s", chat.ID, chat, err)
		},
	}
}

// Select streams candidates from all chats of all sources, in chat discovery
// order, calling fn for each.  It keeps at most one chat's id set in memory
// at a time.  It stops early only on cancellation or when fn returns an
// error.
func (s *Selector) Select(ctx context.Context, fn func(Candidate) error) error {
	chats, err := s.Chats(ctx)
	if err != nil {
		return err
	}
	for _, chat := range chats {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Chat(ctx, chat, fn); err != nil {
			return err
		}
	}
	return nil
}

// Chat scans a single chat across all sources, deduplicates by message id and
// calls fn for each candidate that the predicate selects.
func (s *Selector) Chat(ctx context.Context, chat Chat, fn func(Candidate) error) error {
	seen := make(map[int64]struct{})
	for _, src := range s.sources {
		err := src.Messages(ctx, chat.ID, func(m Message) error {
			if _, ok := seen[m.ID]; ok {
				return nil
			}
			seen[m.ID] = struct{}{}
			if m.ChatTitle == "" {
				m.ChatTitle = chat.Title
			}
			reason, ok := s.pred.Match(m)
			if !ok {
				return nil
			}
			if err := fn(Candidate{Message: m, Reason: reason}); err != nil {
				return &yieldError{err: err}
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ye *yieldError
			if errors.As(err, &ye) {
				return ye.err
			}
			// a broken source must not abort the other sources or chats.
			s.OnSourceError(chat, err)
		}
	}
	return nil
}

// Chats merges the chat lists of all sources preserving the order of first
// appearance.
func (s *Selector) Chats(ctx context.Context) ([]Chat, error) {
	var (
		all  []Chat
		seen = make(map[int64]struct{})
	)
	for i, src := range s.sources {
		chats, err := src.Chats(ctx)
		if err != nil {
			if i == 0 && len(s.sources) > 1 {
				dlog.Printf("source %d unavailable, continuing with the next one: %s", i, err)
				continue
			}
			return nil, err
		}
		for _, chat := range chats {
			if _, ok := seen[chat.ID]; ok {
				continue
			}
			seen[chat.ID] = struct{}{}
			all = append(all, chat)
		}
	}
	if len(all) == 0 && len(s.sources) == 0 {
		return nil, ErrNoSources
	}
	return all, nil
}

// yieldError wraps an error returned by the consumer callback so that Chat
// can tell it apart from a source failure.
type yieldError struct{ err error }

func (e *yieldError) Error() string { return e.err.Error() }
func (e *yieldError) Unwrap() error { return e.err }
