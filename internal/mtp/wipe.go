package mtp

import (
	"context"
	"runtime/trace"

	"github.com/gotd/td/telegram/message"
)

// DeleteMessages revokes one batch of messages in the dialog, deleting them
// for all participants.  It returns the number of messages telegram actually
// removed: ids that were already gone are not counted, which is what lets a
// re-run classify them as skipped rather than failed.  Faults are returned
// classified (rate limit, transient, auth).
func (c *Client) DeleteMessages(ctx context.Context, chatID int64, ids []int64) (int, error) {
	ctx, task := trace.NewTask(ctx, "DeleteMessages")
	defer task.End()

	ent, err := c.entity(ctx, chatID)
	if err != nil {
		trace.Log(ctx, "logic", err.Error())
		return 0, err
	}
	ip, err := asInputPeer(ent)
	if err != nil {
		trace.Log(ctx, "logic", err.Error())
		return 0, err
	}

	msgIDs := make([]int, len(ids))
	for i := range ids {
		msgIDs[i] = int(ids[i])
	}

	resp, err := message.NewSender(c.cl.API()).To(ip).Revoke().Messages(ctx, msgIDs...)
	if err != nil {
		trace.Logf(ctx, "api", "revoke error: %s", err)
		return 0, classify(err)
	}
	trace.Logf(ctx, "logic", "revoked %d of %d", resp.GetPtsCount(), len(ids))
	return resp.GetPtsCount(), nil
}
