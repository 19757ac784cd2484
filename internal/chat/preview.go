package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"teamchat/internal/censor"
	"teamchat/internal/model"
	"teamchat/internal/storage"
)

// Preview summarizes the latest message of one conversation for the inbox.
// Peer is set for DIRECT previews and Channel for CHANNEL previews.
type Preview struct {
	Mode           model.DeliveryMode
	ConversationID uuid.UUID
	Peer           model.Sender
	Channel        *model.Channel
	Message        model.Message
	Content        string
	Unseen         bool
	Mentions       []model.ResolvedMention
}

func (p Preview) At() int64 { return p.Message.CreatedAt.UnixNano() }

// Previews returns one row per direct peer and per channel of the actor that
// has traffic, newest first.
func (s *Service) Previews(ctx context.Context, actor model.Actor) ([]Preview, error) {
	var direct, channel []model.Message
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		direct, err = s.store.LatestDirectMessages(gctx, actor.TeamID, actor.ID)
		return err
	})
	g.Go(func() error {
		var err error
		channel, err = s.store.LatestChannelMessages(gctx, actor.TeamID, actor.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load latest messages: %w", err)
	}

	c, err := s.teams.Censor(ctx, actor.TeamID)
	if err != nil {
		return nil, err
	}

	sortNewestFirst(direct)
	sortNewestFirst(channel)

	senders := s.newSenderCache()
	directRows := make([]Preview, 0, len(direct))
	for _, m := range direct {
		p, err := s.directPreview(ctx, actor, c, senders, m)
		if err != nil {
			return nil, err
		}
		directRows = append(directRows, p)
	}

	channelRows := make([]Preview, 0, len(channel))
	for _, m := range channel {
		p, ok, err := s.channelPreview(ctx, actor, c, m)
		if err != nil {
			return nil, err
		}
		if ok {
			channelRows = append(channelRows, p)
		}
	}

	return mergeNewestFirst(directRows, channelRows), nil
}

func (s *Service) directPreview(ctx context.Context, actor model.Actor, c *censor.Censor, senders *senderCache, m model.Message) (Preview, error) {
	conv := m.Conversation()
	peerID := conv.LedgerConversation(actor.ID)

	peer, err := senders.get(ctx, peerID)
	if err != nil {
		return Preview{}, fmt.Errorf("load peer %s: %w", peerID, err)
	}
	return s.decoratePreview(ctx, actor, c, m, Preview{
		Mode:           model.DeliveryDirect,
		ConversationID: peerID,
		Peer:           peer,
	})
}

// channelPreview reports false when the channel disappeared after the
// latest-message query.
func (s *Service) channelPreview(ctx context.Context, actor model.Actor, c *censor.Censor, m model.Message) (Preview, bool, error) {
	ch, err := s.store.FindChannel(ctx, m.ReceiverID)
	if errors.Is(err, storage.ErrNotFound) {
		return Preview{}, false, nil
	}
	if err != nil {
		return Preview{}, false, fmt.Errorf("load channel %s: %w", m.ReceiverID, err)
	}
	p, err := s.decoratePreview(ctx, actor, c, m, Preview{
		Mode:           model.DeliveryChannel,
		ConversationID: ch.ID,
		Channel:        ch,
	})
	return p, err == nil, err
}

func (s *Service) decoratePreview(ctx context.Context, actor model.Actor, c *censor.Censor, m model.Message, p Preview) (Preview, error) {
	offset, err := s.ledger.GetOrDefault(ctx, model.LedgerKeyFor(actor.TeamID, actor.ID, m.Conversation()))
	if err != nil {
		return Preview{}, err
	}
	mentions, err := s.mentions.Resolve(ctx, m.ID)
	if err != nil {
		return Preview{}, err
	}
	p.Message = m
	p.Content = c.Apply(m)
	p.Unseen = offset > 0
	p.Mentions = mentions
	return p, nil
}

func sortNewestFirst(msgs []model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
}

// mergeNewestFirst merges two lists already sorted newest first. On equal
// timestamps a row from a comes before a row from b, and each list keeps its
// own order.
func mergeNewestFirst(a, b []Preview) []Preview {
	out := make([]Preview, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if b[j].At() > a[i].At() {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
