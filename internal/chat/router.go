package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"teamchat/internal/ledger"
	"teamchat/internal/metrics"
	"teamchat/internal/model"
	"teamchat/internal/notify"
	"teamchat/internal/storage"
)

type SendRequest struct {
	DestinationID uuid.UUID
	Content       string
	ContentType   model.ContentType
	MentionIDs    []uuid.UUID
}

// Send validates and stores a message, updates the ledger of every
// participant of the conversation and records the mentions, all in one
// transaction. A notification is queued after commit.
func (s *Service) Send(ctx context.Context, actor model.Actor, req SendRequest) (*model.Message, error) {
	if req.DestinationID == actor.ID {
		metrics.SendFailures.WithLabelValues("invalid_destination").Inc()
		return nil, ErrInvalidDestination
	}
	if req.ContentType == "" {
		req.ContentType = model.ContentText
	}
	if !req.ContentType.Valid() {
		metrics.SendFailures.WithLabelValues("invalid_content_type").Inc()
		return nil, fmt.Errorf("%w: %q", ErrInvalidContentType, req.ContentType)
	}

	mode, err := s.resolveDestination(ctx, actor, req.DestinationID)
	if err != nil {
		metrics.SendFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	targets, err := s.mentions.Classify(ctx, actor.TeamID, req.MentionIDs)
	if err != nil {
		metrics.SendFailures.WithLabelValues("delivery_failed").Inc()
		return nil, &DeliveryError{Err: err}
	}

	if err := s.teams.EnsureTeam(ctx, actor.TeamID); err != nil {
		metrics.SendFailures.WithLabelValues("delivery_failed").Inc()
		return nil, &DeliveryError{Err: fmt.Errorf("prepare team: %w", err)}
	}

	msg := &model.Message{
		ID:           uuid.New(),
		SenderID:     actor.ID,
		ReceiverID:   req.DestinationID,
		TeamID:       actor.TeamID,
		Content:      req.Content,
		DeliveryMode: mode,
		ContentType:  req.ContentType,
		CreatedAt:    s.now().UTC(),
	}
	conv := msg.Conversation()

	var recipients []uuid.UUID
	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		ok, err := tx.LockDestination(ctx, mode, req.DestinationID)
		if err != nil {
			return fmt.Errorf("lock destination: %w", err)
		}
		if !ok {
			return errDestinationGone
		}

		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}

		switch mode {
		case model.DeliveryDirect:
			recipients = []uuid.UUID{req.DestinationID}
		case model.DeliveryChannel:
			members, err := tx.ChannelMemberIDs(ctx, req.DestinationID)
			if err != nil {
				return fmt.Errorf("channel members: %w", err)
			}
			recipients = without(members, actor.ID)
		}

		keys := make([]model.LedgerKey, len(recipients))
		for i, id := range recipients {
			keys[i] = model.LedgerKeyFor(actor.TeamID, id, conv)
		}
		sender := model.LedgerKeyFor(actor.TeamID, actor.ID, conv)
		if err := ledger.New(tx).RecordSend(ctx, sender, keys); err != nil {
			return err
		}

		return tx.InsertMentions(ctx, msg, targets)
	})
	if err != nil {
		return nil, s.deliveryFailure(ctx, mode, req.DestinationID, err)
	}

	metrics.MessagesSent.WithLabelValues(string(mode)).Inc()
	metrics.LedgerIncrements.WithLabelValues(string(mode)).Add(float64(len(recipients)))
	s.logger.Debug().
		Str("message_id", msg.ID.String()).
		Str("team_id", msg.TeamID.String()).
		Str("mode", string(mode)).
		Int("recipients", len(recipients)).
		Msg("message delivered")

	s.notifier.Notify(ctx, notify.Event{
		Type:         notify.EventMessageCreated,
		TeamID:       msg.TeamID,
		MessageID:    msg.ID,
		SenderID:     msg.SenderID,
		Conversation: conv.String(),
		DeliveryMode: string(mode),
		Recipients:   recipients,
		CreatedAt:    msg.CreatedAt,
	})
	return msg, nil
}

// resolveDestination tries a user first, then a channel. Posting to a channel
// requires membership.
func (s *Service) resolveDestination(ctx context.Context, actor model.Actor, id uuid.UUID) (model.DeliveryMode, error) {
	u, err := s.store.FindUser(ctx, id)
	switch {
	case err == nil:
		if u.TeamID != actor.TeamID {
			return "", fmt.Errorf("user %s: %w", id, ErrNotInTeam)
		}
		return model.DeliveryDirect, nil
	case !errors.Is(err, storage.ErrNotFound):
		return "", &DeliveryError{Err: fmt.Errorf("find user: %w", err)}
	}

	c, err := s.store.FindChannel(ctx, id)
	switch {
	case err == nil:
		if c.TeamID != actor.TeamID {
			return "", fmt.Errorf("channel %s: %w", id, ErrNotInTeam)
		}
		member, err := s.store.IsChannelMember(ctx, id, actor.ID)
		if err != nil {
			return "", &DeliveryError{Err: fmt.Errorf("check membership: %w", err)}
		}
		if !member {
			return "", fmt.Errorf("channel %s: %w", id, ErrForbidden)
		}
		if s.auth != nil {
			if err := s.auth.AuthorizeChannel(ctx, actor, id); err != nil {
				return "", fmt.Errorf("%w: %w", ErrForbidden, err)
			}
		}
		return model.DeliveryChannel, nil
	case !errors.Is(err, storage.ErrNotFound):
		return "", &DeliveryError{Err: fmt.Errorf("find channel: %w", err)}
	}

	return "", fmt.Errorf("%s: %w", id, ErrDestinationNotFound)
}

// deliveryFailure classifies a rolled back send by re-reading the
// destination outside the failed transaction.
func (s *Service) deliveryFailure(ctx context.Context, mode model.DeliveryMode, dest uuid.UUID, cause error) error {
	var err error
	if mode == model.DeliveryChannel {
		_, err = s.store.FindChannel(ctx, dest)
	} else {
		_, err = s.store.FindUser(ctx, dest)
	}
	vanished := errors.Is(err, storage.ErrNotFound)

	derr := &DeliveryError{Vanished: vanished, Err: cause}
	metrics.SendFailures.WithLabelValues(failureReason(derr)).Inc()
	s.logger.Error().
		Err(cause).
		Str("destination_id", dest.String()).
		Bool("vanished", vanished).
		Msg("send rolled back")
	return derr
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrDestinationVanished):
		return "destination_vanished"
	case errors.Is(err, ErrDeliveryFailed):
		return "delivery_failed"
	case errors.Is(err, ErrNotInTeam):
		return "not_in_team"
	case errors.Is(err, ErrDestinationNotFound):
		return "destination_not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	}
	return "rejected"
}

func without(ids []uuid.UUID, drop uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
