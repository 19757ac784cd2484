package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"teamchat/internal/model"
)

// ErrNotFound is returned by single-row lookups when the row does not exist.
var ErrNotFound = errors.New("storage: not found")

// Store is the persistence surface of the chat engine. Storage (PostgreSQL)
// and SQLite implement it.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	// EnsurePartition prepares per-team message storage. Safe to repeat.
	EnsurePartition(ctx context.Context, teamID uuid.UUID) error

	FindUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindChannel(ctx context.Context, id uuid.UUID) (*model.Channel, error)
	FindBot(ctx context.Context, id uuid.UUID) (*model.Bot, error)
	IsChannelMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error)

	// ForbiddenWords returns the team's words in insertion order.
	ForbiddenWords(ctx context.Context, teamID uuid.UUID) ([]string, error)

	// MessageMentions returns the message's mention targets in position order.
	MessageMentions(ctx context.Context, messageID uuid.UUID) ([]model.MentionTarget, error)

	// LatestDirectMessages returns the most recent message of every direct
	// conversation participantID takes part in.
	LatestDirectMessages(ctx context.Context, teamID, participantID uuid.UUID) ([]model.Message, error)
	// LatestChannelMessages returns the most recent message of every channel
	// memberID belongs to that has at least one message.
	LatestChannelMessages(ctx context.Context, teamID, memberID uuid.UUID) ([]model.Message, error)
	// ConversationMessages returns one page of a conversation, newest first.
	ConversationMessages(ctx context.Context, teamID uuid.UUID, conv model.ConversationKey, offset, limit int) ([]model.Message, error)

	LedgerStore

	// WithTx runs fn in a single transaction. A non-nil error from fn rolls
	// every mutation back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// LedgerStore holds the atomic ledger primitives. Every method is a single
// row-level operation per key; none of them read-then-write.
type LedgerStore interface {
	Offset(ctx context.Context, key model.LedgerKey) (int, bool, error)
	ResetOffset(ctx context.Context, key model.LedgerKey) error
	// ApplyOffsets resets or increments each key's offset in the order given,
	// creating missing rows. Keys must be distinct.
	ApplyOffsets(ctx context.Context, updates []model.LedgerUpdate) error
	// LockOffset creates the row at 0 when absent and returns its offset.
	// Inside a transaction the row stays locked until commit, so concurrent
	// ApplyOffsets calls on it wait.
	LockOffset(ctx context.Context, key model.LedgerKey) (int, error)
}

// Tx is the transactional side of the store: the whole of a send, and the
// read-and-reset of a history page.
type Tx interface {
	LedgerStore

	ConversationMessages(ctx context.Context, teamID uuid.UUID, conv model.ConversationKey, offset, limit int) ([]model.Message, error)

	// LockDestination re-reads the destination row inside the transaction
	// and holds it until commit. It reports false when the row is gone.
	LockDestination(ctx context.Context, mode model.DeliveryMode, id uuid.UUID) (bool, error)
	InsertMessage(ctx context.Context, m *model.Message) error
	ChannelMemberIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error)
	InsertMentions(ctx context.Context, m *model.Message, targets []model.MentionTarget) error
}

// Directory writes the rows the engine only reads. Account and channel
// management live outside this service; these exist for seeding and tests.
type Directory interface {
	CreateUser(ctx context.Context, u model.User) error
	CreateChannel(ctx context.Context, c model.Channel) error
	AddChannelMember(ctx context.Context, channelID, userID uuid.UUID) error
	CreateBot(ctx context.Context, b model.Bot) error
	AddForbiddenWord(ctx context.Context, teamID uuid.UUID, word string) error
	DeleteChannel(ctx context.Context, id uuid.UUID) error
}
