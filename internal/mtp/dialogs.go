package mtp

import (
	"context"
	"fmt"
	"runtime/trace"

	"github.com/gotd/contrib/storage"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/tg"

	"github.com/rusq/sweepmychat/internal/sweep"
)

// GetDialogs retrieves all of the account's dialogs: users, chats and
// channels alike (all of them can hold the account owner's messages).
func (c *Client) GetDialogs(ctx context.Context) ([]Entity, error) {
	return c.GetEntities(ctx, FilterAny())
}

// GetEntities ensures that peer storage is populated, then iterates the
// stored peers calling filterFn for each.  Matched entities are also placed
// in the id lookup cache for History and DeleteMessages.
func (c *Client) GetEntities(ctx context.Context, filterFn FilterFunc) ([]Entity, error) {
	ctx, task := trace.NewTask(ctx, "GetEntities")
	defer task.End()

	if err := c.ensureStoragePopulated(ctx); err != nil {
		return nil, err
	}

	peerIter, err := c.storage.Iterate(ctx)
	if err != nil {
		return nil, err
	}
	defer peerIter.Close()

	var ee []Entity
	for peerIter.Next(ctx) {
		ent, ok := filterFn(peerIter.Value())
		if !ok {
			continue
		}
		if err := c.entities.Set(entKey(ent.GetID()), ent); err != nil {
			return nil, err
		}
		ee = append(ee, ent)
	}
	if err := peerIter.Err(); err != nil {
		return nil, err
	}
	return ee, nil
}

// entity resolves a dialog by id, repopulating the lookup cache if needed.
func (c *Client) entity(ctx context.Context, id int64) (Entity, error) {
	if cached, err := c.entities.Get(entKey(id)); err == nil {
		return cached.(Entity), nil
	}
	if _, err := c.GetDialogs(ctx); err != nil {
		return nil, err
	}
	cached, err := c.entities.Get(entKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return cached.(Entity), nil
}

// ensureStoragePopulated ensures that the peer storage has been populated
// within defCacheEvict duration.
func (c *Client) ensureStoragePopulated(ctx context.Context) error {
	if fresh, err := c.dialogs.Get(keyDialogsFresh); err == nil && fresh.(bool) {
		trace.Log(ctx, "cache", "hit")
		return nil
	}
	trace.Log(ctx, "cache", "miss")

	dlgIter := dialogs.NewQueryBuilder(c.cl.API()).
		GetDialogs().
		BatchSize(defPageSize).
		Iter()
	if err := storage.CollectPeers(c.storage).Dialogs(ctx, dlgIter); err != nil {
		return classify(err)
	}
	return c.dialogs.SetWithExpire(keyDialogsFresh, true, defCacheEvict)
}

// Chats implements sweep.Source over the account's dialog list.
func (c *Client) Chats(ctx context.Context) ([]sweep.Chat, error) {
	ee, err := c.GetDialogs(ctx)
	if err != nil {
		return nil, err
	}
	var chats = make([]sweep.Chat, 0, len(ee))
	for _, ent := range ee {
		chats = append(chats, sweep.Chat{
			ID:    ent.GetID(),
			Title: ent.GetTitle(),
			Type:  ent.TypeInfo().Name,
		})
	}
	return chats, nil
}

func asInputPeer(ent Entity) (tg.InputPeerClass, error) {
	switch peer := ent.(type) {
	case *tg.Chat:
		return peer.AsInputPeer(), nil
	case *tg.Channel:
		return peer.AsInputPeer(), nil
	case userEntity:
		return peer.AsInputPeer(), nil
	default:
		return nil, fmt.Errorf("unsupported input peer type: %T", peer)
	}
}
