// Package mention classifies mention targets when a message is sent and
// decorates them with identities when it is read.
package mention

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"teamchat/internal/model"
	"teamchat/internal/storage"
)

// Directory is the lookup surface the resolver needs.
type Directory interface {
	FindUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindChannel(ctx context.Context, id uuid.UUID) (*model.Channel, error)
	FindBot(ctx context.Context, id uuid.UUID) (*model.Bot, error)
	MessageMentions(ctx context.Context, messageID uuid.UUID) ([]model.MentionTarget, error)
}

type Resolver struct {
	dir    Directory
	logger zerolog.Logger
}

func NewResolver(dir Directory, logger zerolog.Logger) *Resolver {
	return &Resolver{dir: dir, logger: logger.With().Str("component", "mention").Logger()}
}

// Classify decides each target's kind: a user of the team, else a channel of
// the team, else a bot. The bot fallback applies even when no bot with that
// id exists.
func (r *Resolver) Classify(ctx context.Context, teamID uuid.UUID, ids []uuid.UUID) ([]model.MentionTarget, error) {
	targets := make([]model.MentionTarget, 0, len(ids))
	for _, id := range ids {
		u, err := r.dir.FindUser(ctx, id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("classify mention %s: %w", id, err)
		}
		if u != nil && u.TeamID == teamID {
			targets = append(targets, model.UserTarget(id))
			continue
		}

		c, err := r.dir.FindChannel(ctx, id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("classify mention %s: %w", id, err)
		}
		if c != nil && c.TeamID == teamID {
			targets = append(targets, model.ChannelTarget(id))
			continue
		}

		targets = append(targets, model.BotTarget(id))
	}
	return targets, nil
}

// Resolve returns the decorated mentions of a message in their original
// order. A message without mentions yields an empty slice.
func (r *Resolver) Resolve(ctx context.Context, messageID uuid.UUID) ([]model.ResolvedMention, error) {
	targets, err := r.dir.MessageMentions(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load mentions of %s: %w", messageID, err)
	}
	resolved := make([]model.ResolvedMention, 0, len(targets))
	for _, t := range targets {
		m, err := r.decorate(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("resolve mention %s: %w", t.ID, err)
		}
		resolved = append(resolved, m)
	}
	return resolved, nil
}

func (r *Resolver) decorate(ctx context.Context, t model.MentionTarget) (model.ResolvedMention, error) {
	switch t.Kind {
	case model.MentionUser:
		u, err := r.dir.FindUser(ctx, t.ID)
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn().Str("target_id", t.ID.String()).Msg("mentioned user no longer exists")
			return model.UserMention{ID: t.ID}, nil
		}
		if err != nil {
			return nil, err
		}
		return model.UserMention{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}, nil

	case model.MentionChannel:
		c, err := r.dir.FindChannel(ctx, t.ID)
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn().Str("target_id", t.ID.String()).Msg("mentioned channel no longer exists")
			return model.ChannelMention{ID: t.ID}, nil
		}
		if err != nil {
			return nil, err
		}
		return model.ChannelMention{ID: c.ID, Name: c.Name}, nil

	case model.MentionBot:
		b, err := r.dir.FindBot(ctx, t.ID)
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Debug().Str("target_id", t.ID.String()).Msg("mention fell back to unknown bot")
			return model.BotMention{ID: t.ID}, nil
		}
		if err != nil {
			return nil, err
		}
		return model.BotMention{ID: b.ID, Name: b.Name}, nil
	}
	return nil, fmt.Errorf("unknown mention kind %q", t.Kind)
}
