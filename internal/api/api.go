package api

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"teamchat/internal/auth"
	"teamchat/internal/chat"
	"teamchat/internal/model"
)

// Chat is the engine surface the handlers call. *chat.Service implements it.
type Chat interface {
	Send(ctx context.Context, actor model.Actor, req chat.SendRequest) (*model.Message, error)
	History(ctx context.Context, actor model.Actor, conversationID uuid.UUID, offset int) ([]chat.HistoryItem, error)
	Previews(ctx context.Context, actor model.Actor) ([]chat.Preview, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type API struct {
	Chat     Chat
	Storage  Pinger
	Auth     *auth.Authenticator
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewAPI(c Chat, db Pinger, authn *auth.Authenticator, logger zerolog.Logger) *API {
	return &API{
		Chat:     c,
		Storage:  db,
		Auth:     authn,
		validate: validator.New(),
		logger:   logger.With().Str("component", "api").Logger(),
	}
}
