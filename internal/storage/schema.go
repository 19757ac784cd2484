// internal/storage/schema.go
package storage

import (
	"context"
	"fmt"
)

// schema is applied by Migrate. Messages are list-partitioned by team; the
// per-team partitions are created by EnsurePartition.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         UUID PRIMARY KEY,
	team_id    UUID NOT NULL,
	username   TEXT NOT NULL,
	first_name TEXT NOT NULL DEFAULT '',
	last_name  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS channels (
	id      UUID PRIMARY KEY,
	team_id UUID NOT NULL,
	name    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS channel_members (
	channel_id UUID NOT NULL REFERENCES channels (id) ON DELETE CASCADE,
	user_id    UUID NOT NULL,
	PRIMARY KEY (channel_id, user_id)
);

CREATE INDEX IF NOT EXISTS channel_members_user_idx ON channel_members (user_id);

CREATE TABLE IF NOT EXISTS bots (
	id      UUID PRIMARY KEY,
	team_id UUID NOT NULL,
	name    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS forbidden_words (
	id      BIGSERIAL PRIMARY KEY,
	team_id UUID NOT NULL,
	word    TEXT NOT NULL,
	UNIQUE (team_id, word)
);

CREATE TABLE IF NOT EXISTS messages (
	id               UUID NOT NULL,
	seq              BIGSERIAL,
	team_id          UUID NOT NULL,
	sender_id        UUID NOT NULL,
	receiver_id      UUID NOT NULL,
	conversation_key TEXT NOT NULL,
	content          TEXT NOT NULL,
	delivery_mode    TEXT NOT NULL CHECK (delivery_mode IN ('DIRECT', 'CHANNEL')),
	content_type     TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (team_id, id)
) PARTITION BY LIST (team_id);

CREATE INDEX IF NOT EXISTS messages_conversation_idx
	ON messages (team_id, conversation_key, created_at DESC, seq DESC);

CREATE TABLE IF NOT EXISTS mentions (
	team_id     UUID NOT NULL,
	message_id  UUID NOT NULL,
	position    INT NOT NULL,
	target_id   UUID NOT NULL,
	target_kind TEXT NOT NULL CHECK (target_kind IN ('user', 'channel', 'bot')),
	PRIMARY KEY (message_id, position),
	FOREIGN KEY (team_id, message_id) REFERENCES messages (team_id, id)
);

CREATE TABLE IF NOT EXISTS conversation_ledger (
	participant_id  UUID NOT NULL,
	conversation_id UUID NOT NULL,
	team_id         UUID NOT NULL,
	unseen_offset   INT NOT NULL DEFAULT 0 CHECK (unseen_offset >= 0),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (participant_id, conversation_id, team_id)
);
`

// Migrate creates the tables the engine needs.
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
