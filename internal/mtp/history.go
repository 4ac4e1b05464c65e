package mtp

import (
	"context"
	"runtime/trace"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gotd/td/tg"
	"github.com/rusq/dlog"

	"github.com/rusq/sweepmychat/internal/sweep"
)

// Messages implements sweep.Source: it streams the account owner's own
// messages from the dialog, newest first, by paging message history.  The
// stream is finite per call and not restartable mid-flight.
func (c *Client) Messages(ctx context.Context, chatID int64, fn func(sweep.Message) error) error {
	ent, err := c.entity(ctx, chatID)
	if err != nil {
		return err
	}
	return c.History(ctx, ent, fn)
}

// History enumerates own messages in the dialog, newest first.  A failed
// page is retried in place with exponential backoff before the fault is
// surfaced; authentication faults are surfaced immediately.
func (c *Client) History(ctx context.Context, ent Entity, fn func(sweep.Message) error) error {
	ctx, task := trace.NewTask(ctx, "History")
	defer task.End()

	ip, err := asInputPeer(ent)
	if err != nil {
		return err
	}

	offsetID := 0
	for {
		page, err := c.historyPage(ctx, ip, offsetID)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		// history is newest first, the last element is the lowest id.
		next := page[len(page)-1].GetID()
		if offsetID != 0 && next >= offsetID {
			return nil // not paginating, bail out
		}
		offsetID = next
		for _, m := range page {
			msg, ok := m.(*tg.Message)
			if !ok {
				continue // service messages and the like
			}
			if !msg.Out {
				continue
			}
			if err := fn(sweep.Message{
				ChatID:    ent.GetID(),
				ID:        int64(msg.ID),
				Date:      time.Unix(int64(msg.Date), 0),
				Text:      msg.Message,
				ChatTitle: ent.GetTitle(),
			}); err != nil {
				return err
			}
		}
		if len(page) < defPageSize {
			return nil
		}
	}
}

// historyPage fetches one page of history ending right before offsetID,
// retrying transient faults for the same page.
func (c *Client) historyPage(ctx context.Context, ip tg.InputPeerClass, offsetID int) ([]tg.MessageClass, error) {
	bo := backoff.WithContext(backoff.WithMaxRetries(newExpBackoff(), uint64(c.maxPageRetries)), ctx)

	var page []tg.MessageClass
	op := func() error {
		resp, err := c.cl.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     ip,
			OffsetID: offsetID,
			Limit:    defPageSize,
		})
		if err != nil {
			err = classify(err)
			if _, ok := retryWait(err); ok {
				dlog.Debugf("history page at offset %d: retrying: %s", offsetID, err)
				return err
			}
			return backoff.Permanent(err)
		}
		switch m := resp.(type) {
		case *tg.MessagesMessages:
			page = m.Messages
		case *tg.MessagesMessagesSlice:
			page = m.Messages
		case *tg.MessagesChannelMessages:
			page = m.Messages
		default: // MessagesMessagesNotModified
			page = nil
		}
		return nil
	}
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return page, nil
}

func newExpBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	return bo
}
