package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"teamchat/internal/ledger"
	"teamchat/internal/model"
	"teamchat/internal/storage"
)

type HistoryItem struct {
	Message  model.Message
	Sender   model.Sender
	Content  string
	Unseen   bool
	Mentions []model.ResolvedMention
}

// History returns one page of a conversation, newest first, and clears the
// actor's unseen offset for it. conversationID is a channel id or the id of
// the direct peer.
//
// The offset is read, the page loaded and the offset reset in one
// transaction that holds the actor's ledger row, so a concurrent send either
// lands before the page (and is marked) or after the reset (and stays
// unseen).
func (s *Service) History(ctx context.Context, actor model.Actor, conversationID uuid.UUID, offset int) ([]HistoryItem, error) {
	if offset < 0 {
		return nil, ErrInvalidOffset
	}

	conv, err := s.resolveConversation(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}
	key := model.LedgerKeyFor(actor.TeamID, actor.ID, conv)

	var (
		unseen int
		msgs   []model.Message
	)
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		l := ledger.New(tx)
		var err error
		if unseen, err = l.Claim(ctx, key); err != nil {
			return err
		}
		msgs, err = tx.ConversationMessages(ctx, actor.TeamID, conv, offset, s.pageSize)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		return l.Reset(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	c, err := s.teams.Censor(ctx, actor.TeamID)
	if err != nil {
		return nil, err
	}

	senders := s.newSenderCache()
	items := make([]HistoryItem, 0, len(msgs))
	for i, m := range msgs {
		snd, err := senders.get(ctx, m.SenderID)
		if err != nil {
			return nil, fmt.Errorf("load sender %s: %w", m.SenderID, err)
		}
		mentions, err := s.mentions.Resolve(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, HistoryItem{
			Message:  m,
			Sender:   snd,
			Content:  c.Apply(m),
			Unseen:   i < unseen && m.SenderID != actor.ID,
			Mentions: mentions,
		})
	}
	return items, nil
}

// resolveConversation treats id as a channel when it names a channel of the
// actor's team, and as a direct peer otherwise.
func (s *Service) resolveConversation(ctx context.Context, actor model.Actor, id uuid.UUID) (model.ConversationKey, error) {
	ch, err := s.store.FindChannel(ctx, id)
	switch {
	case err == nil && ch.TeamID == actor.TeamID:
		member, err := s.store.IsChannelMember(ctx, id, actor.ID)
		if err != nil {
			return model.ConversationKey{}, fmt.Errorf("check membership: %w", err)
		}
		if !member {
			return model.ConversationKey{}, fmt.Errorf("channel %s: %w", id, ErrConversationNotFound)
		}
		return model.ChannelConversation(id), nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return model.ConversationKey{}, fmt.Errorf("find channel: %w", err)
	}

	if id == actor.ID {
		return model.ConversationKey{}, fmt.Errorf("%s: %w", id, ErrConversationNotFound)
	}
	conv := model.DirectConversation(actor.ID, id)
	ok, err := s.ledger.Exists(ctx, model.LedgerKeyFor(actor.TeamID, actor.ID, conv))
	if err != nil {
		return model.ConversationKey{}, err
	}
	if !ok {
		return model.ConversationKey{}, fmt.Errorf("peer %s: %w", id, ErrConversationNotFound)
	}
	return conv, nil
}
