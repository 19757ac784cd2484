// Package chat is the conversation-state engine: it routes sends, keeps the
// unseen ledger in step, and builds the inbox and history views.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"teamchat/internal/censor"
	"teamchat/internal/ledger"
	"teamchat/internal/mention"
	"teamchat/internal/model"
	"teamchat/internal/notify"
	"teamchat/internal/storage"
)

const DefaultPageSize = 50

// Teams provides team-scoped resources. *manager.TeamManager implements it.
type Teams interface {
	EnsureTeam(ctx context.Context, teamID uuid.UUID) error
	Censor(ctx context.Context, teamID uuid.UUID) (*censor.Censor, error)
}

// ChannelAuthorizer is an external permission check for posting to a channel,
// run after membership is confirmed. A rejection is returned wrapped with
// ErrForbidden, so both the authorizer's own error and ErrForbidden match.
type ChannelAuthorizer interface {
	AuthorizeChannel(ctx context.Context, actor model.Actor, channelID uuid.UUID) error
}

type Options struct {
	PageSize   int
	Notifier   notify.Notifier
	Authorizer ChannelAuthorizer
	Now        func() time.Time
}

type Service struct {
	store    storage.Store
	teams    Teams
	mentions *mention.Resolver
	ledger   *ledger.Ledger
	notifier notify.Notifier
	auth     ChannelAuthorizer
	pageSize int
	now      func() time.Time
	logger   zerolog.Logger
}

func NewService(store storage.Store, teams Teams, opts Options, logger zerolog.Logger) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger = logger.With().Str("component", "chat").Logger()
	return &Service{
		store:    store,
		teams:    teams,
		mentions: mention.NewResolver(store, logger),
		ledger:   ledger.New(store),
		notifier: opts.Notifier,
		auth:     opts.Authorizer,
		pageSize: opts.PageSize,
		now:      opts.Now,
		logger:   logger,
	}
}

// lookupSender renders id as a user, else a bot. An id matching neither is
// reported as a bare user so deleted accounts still render.
func (s *Service) lookupSender(ctx context.Context, id uuid.UUID) (model.Sender, error) {
	u, err := s.store.FindUser(ctx, id)
	if err == nil {
		return model.SenderFromUser(*u), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	b, err := s.store.FindBot(ctx, id)
	if err == nil {
		return model.SenderFromBot(*b), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	s.logger.Warn().Str("sender_id", id.String()).Msg("sender not found, rendering bare identity")
	return model.UserSender{ID: id}, nil
}

// senderCache memoizes sender lookups within one request.
type senderCache struct {
	svc  *Service
	byID map[uuid.UUID]model.Sender
}

func (s *Service) newSenderCache() *senderCache {
	return &senderCache{svc: s, byID: make(map[uuid.UUID]model.Sender)}
}

func (c *senderCache) get(ctx context.Context, id uuid.UUID) (model.Sender, error) {
	if snd, ok := c.byID[id]; ok {
		return snd, nil
	}
	snd, err := c.svc.lookupSender(ctx, id)
	if err != nil {
		return nil, err
	}
	c.byID[id] = snd
	return snd, nil
}
