package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"teamchat/internal/model"
)

// SQLite is the embedded Store used when no PostgreSQL URL is configured and
// by the package tests. An empty path keeps the database in memory.
//
// The pool holds a single connection: an in-memory database lives and dies
// with its connection, and one writer at a time is all SQLite allows anyway.
// Inside WithTx, fn must only use the Tx it is given.
type SQLite struct {
	db *sql.DB
}

var (
	_ Store     = (*SQLite)(nil)
	_ Directory = (*SQLite)(nil)
)

func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initSchema mirrors the PostgreSQL schema. Messages carry an integer seq
// for insertion order and created_at as Unix nanoseconds.
func (s *SQLite) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		team_id    TEXT NOT NULL,
		username   TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name  TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS channels (
		id      TEXT PRIMARY KEY,
		team_id TEXT NOT NULL,
		name    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS channel_members (
		channel_id TEXT NOT NULL REFERENCES channels (id) ON DELETE CASCADE,
		user_id    TEXT NOT NULL,
		PRIMARY KEY (channel_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS channel_members_user_idx ON channel_members (user_id);

	CREATE TABLE IF NOT EXISTS bots (
		id      TEXT PRIMARY KEY,
		team_id TEXT NOT NULL,
		name    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS forbidden_words (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		team_id TEXT NOT NULL,
		word    TEXT NOT NULL,
		UNIQUE (team_id, word)
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq              INTEGER PRIMARY KEY AUTOINCREMENT,
		id               TEXT NOT NULL UNIQUE,
		team_id          TEXT NOT NULL,
		sender_id        TEXT NOT NULL,
		receiver_id      TEXT NOT NULL,
		conversation_key TEXT NOT NULL,
		content          TEXT NOT NULL,
		delivery_mode    TEXT NOT NULL CHECK (delivery_mode IN ('DIRECT', 'CHANNEL')),
		content_type     TEXT NOT NULL,
		created_at       INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS messages_conversation_idx
		ON messages (team_id, conversation_key, created_at DESC, seq DESC);

	CREATE TABLE IF NOT EXISTS mentions (
		message_id  TEXT NOT NULL REFERENCES messages (id),
		position    INTEGER NOT NULL,
		target_id   TEXT NOT NULL,
		target_kind TEXT NOT NULL CHECK (target_kind IN ('user', 'channel', 'bot')),
		PRIMARY KEY (message_id, position)
	);

	CREATE TABLE IF NOT EXISTS conversation_ledger (
		participant_id  TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		team_id         TEXT NOT NULL,
		unseen_offset   INTEGER NOT NULL DEFAULT 0 CHECK (unseen_offset >= 0),
		updated_at      INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		PRIMARY KEY (participant_id, conversation_id, team_id)
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// EnsurePartition is a no-op: SQLite has no table partitioning.
func (s *SQLite) EnsurePartition(context.Context, uuid.UUID) error { return nil }

func (s *SQLite) FindUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u := &model.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, username, first_name, last_name
		FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.TeamID, &u.Username, &u.FirstName, &u.LastName)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *SQLite) FindChannel(ctx context.Context, id uuid.UUID) (*model.Channel, error) {
	c := &model.Channel{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, name FROM channels WHERE id = ?
	`, id).Scan(&c.ID, &c.TeamID, &c.Name)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *SQLite) FindBot(ctx context.Context, id uuid.UUID) (*model.Bot, error) {
	b := &model.Bot{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, name FROM bots WHERE id = ?
	`, id).Scan(&b.ID, &b.TeamID, &b.Name)
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

func (s *SQLite) IsChannelMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM channel_members WHERE channel_id = ? AND user_id = ?)
	`, channelID, userID).Scan(&ok)
	return ok, err
}

func (s *SQLite) ForbiddenWords(ctx context.Context, teamID uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT word FROM forbidden_words WHERE team_id = ? ORDER BY id
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var words []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		words = append(words, w)
	}
	return words, rows.Err()
}

func (s *SQLite) MessageMentions(ctx context.Context, messageID uuid.UUID) ([]model.MentionTarget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_kind, target_id FROM mentions
		WHERE message_id = ?
		ORDER BY position
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	targets := []model.MentionTarget{}
	for rows.Next() {
		var t model.MentionTarget
		if err := rows.Scan(&t.Kind, &t.ID); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (s *SQLite) LatestDirectMessages(ctx context.Context, teamID, participantID uuid.UUID) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY conversation_key ORDER BY created_at DESC, seq DESC
			) AS rn
			FROM messages
			WHERE team_id = ?
			  AND delivery_mode = 'DIRECT'
			  AND (sender_id = ? OR receiver_id = ?)
		)
		WHERE rn = 1
		ORDER BY seq
	`, teamID, participantID, participantID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return scanSQLiteMessages(rows)
}

func (s *SQLite) LatestChannelMessages(ctx context.Context, teamID, memberID uuid.UUID) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT m.*, ROW_NUMBER() OVER (
				PARTITION BY m.receiver_id ORDER BY m.created_at DESC, m.seq DESC
			) AS rn
			FROM messages m
			JOIN channel_members cm ON cm.channel_id = m.receiver_id AND cm.user_id = ?
			WHERE m.team_id = ?
			  AND m.delivery_mode = 'CHANNEL'
		)
		WHERE rn = 1
		ORDER BY seq
	`, memberID, teamID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return scanSQLiteMessages(rows)
}

func (s *SQLite) ConversationMessages(ctx context.Context, teamID uuid.UUID, conv model.ConversationKey, offset, limit int) ([]model.Message, error) {
	return sqliteConversationMessages(ctx, s.db, teamID, conv, offset, limit)
}

func (s *SQLite) Offset(ctx context.Context, key model.LedgerKey) (int, bool, error) {
	return sqliteOffset(ctx, s.db, key)
}

func (s *SQLite) ResetOffset(ctx context.Context, key model.LedgerKey) error {
	return sqliteApply(ctx, s.db, []model.LedgerUpdate{{Key: key, Reset: true}})
}

func (s *SQLite) ApplyOffsets(ctx context.Context, updates []model.LedgerUpdate) error {
	return sqliteApply(ctx, s.db, updates)
}

func (s *SQLite) LockOffset(ctx context.Context, key model.LedgerKey) (int, error) {
	return sqliteLockOffset(ctx, s.db, key)
}

// WithTx opens a BEGIN IMMEDIATE transaction, so it holds the database write
// lock from the first statement until commit or rollback.
func (s *SQLite) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	if err := fn(&sqliteTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

// LockDestination only re-reads the row: the IMMEDIATE transaction already
// excludes every other writer.
func (t *sqliteTx) LockDestination(ctx context.Context, mode model.DeliveryMode, id uuid.UUID) (bool, error) {
	table := "users"
	if mode == model.DeliveryChannel {
		table = "channels"
	}
	var found int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *sqliteTx) InsertMessage(ctx context.Context, m *model.Message) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO messages (id, team_id, sender_id, receiver_id, conversation_key,
		                      content, delivery_mode, content_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.TeamID, m.SenderID, m.ReceiverID, m.Conversation().String(),
		m.Content, m.DeliveryMode, m.ContentType, m.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (t *sqliteTx) ChannelMemberIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT user_id FROM channel_members WHERE channel_id = ? ORDER BY user_id
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *sqliteTx) InsertMentions(ctx context.Context, m *model.Message, targets []model.MentionTarget) error {
	for i, target := range targets {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO mentions (message_id, position, target_id, target_kind)
			VALUES (?, ?, ?, ?)
		`, m.ID, i, target.ID, target.Kind)
		if err != nil {
			return fmt.Errorf("insert mention %d: %w", i, err)
		}
	}
	return nil
}

func (t *sqliteTx) ConversationMessages(ctx context.Context, teamID uuid.UUID, conv model.ConversationKey, offset, limit int) ([]model.Message, error) {
	return sqliteConversationMessages(ctx, t.tx, teamID, conv, offset, limit)
}

func (t *sqliteTx) Offset(ctx context.Context, key model.LedgerKey) (int, bool, error) {
	return sqliteOffset(ctx, t.tx, key)
}

func (t *sqliteTx) ResetOffset(ctx context.Context, key model.LedgerKey) error {
	return sqliteApply(ctx, t.tx, []model.LedgerUpdate{{Key: key, Reset: true}})
}

func (t *sqliteTx) ApplyOffsets(ctx context.Context, updates []model.LedgerUpdate) error {
	return sqliteApply(ctx, t.tx, updates)
}

func (t *sqliteTx) LockOffset(ctx context.Context, key model.LedgerKey) (int, error) {
	return sqliteLockOffset(ctx, t.tx, key)
}

func sqliteConversationMessages(ctx context.Context, q querier, teamID uuid.UUID, conv model.ConversationKey, offset, limit int) ([]model.Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE team_id = ? AND conversation_key = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ? OFFSET ?
	`, teamID, conv.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return scanSQLiteMessages(rows)
}

func sqliteOffset(ctx context.Context, q querier, key model.LedgerKey) (int, bool, error) {
	var offset int
	err := q.QueryRowContext(ctx, `
		SELECT unseen_offset FROM conversation_ledger
		WHERE participant_id = ? AND conversation_id = ? AND team_id = ?
	`, key.ParticipantID, key.ConversationID, key.TeamID).Scan(&offset)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return offset, true, nil
}

// sqliteApply upserts all updates in one statement. A delta of 0 resets the
// row and 1 increments it.
func sqliteApply(ctx context.Context, q querier, updates []model.LedgerUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	values := make([]string, len(updates))
	args := make([]any, 0, 4*len(updates))
	for i, u := range updates {
		delta := 1
		if u.Reset {
			delta = 0
		}
		values[i] = "(?, ?, ?, ?)"
		args = append(args, u.Key.ParticipantID, u.Key.ConversationID, u.Key.TeamID, delta)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO conversation_ledger (participant_id, conversation_id, team_id, unseen_offset)
		VALUES `+strings.Join(values, ", ")+`
		ON CONFLICT (participant_id, conversation_id, team_id)
		DO UPDATE SET unseen_offset = CASE WHEN excluded.unseen_offset = 0 THEN 0
		                                   ELSE conversation_ledger.unseen_offset + 1 END,
		              updated_at = strftime('%s', 'now')
	`, args...)
	if err != nil {
		return fmt.Errorf("apply offsets: %w", err)
	}
	return nil
}

func sqliteLockOffset(ctx context.Context, q querier, key model.LedgerKey) (int, error) {
	var offset int
	err := q.QueryRowContext(ctx, `
		INSERT INTO conversation_ledger (participant_id, conversation_id, team_id, unseen_offset)
		VALUES (?, ?, ?, 0)
		ON CONFLICT (participant_id, conversation_id, team_id)
		DO UPDATE SET unseen_offset = conversation_ledger.unseen_offset
		RETURNING unseen_offset
	`, key.ParticipantID, key.ConversationID, key.TeamID).Scan(&offset)
	if err != nil {
		return 0, fmt.Errorf("lock offset: %w", err)
	}
	return offset, nil
}

func scanSQLiteMessages(rows *sql.Rows) ([]model.Message, error) {
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var (
			m  model.Message
			at int64
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.TeamID, &m.Content,
			&m.DeliveryMode, &m.ContentType, &at); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		m.CreatedAt = time.Unix(0, at).UTC()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLite) CreateUser(ctx context.Context, u model.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, team_id, username, first_name, last_name)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING
	`, u.ID, u.TeamID, u.Username, u.FirstName, u.LastName)
	return err
}

func (s *SQLite) CreateChannel(ctx context.Context, c model.Channel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (id, team_id, name) VALUES (?, ?, ?) ON CONFLICT DO NOTHING
	`, c.ID, c.TeamID, c.Name)
	return err
}

func (s *SQLite) AddChannelMember(ctx context.Context, channelID, userID uuid.UUID) error {
	if _, err := s.FindChannel(ctx, channelID); err != nil {
		return fmt.Errorf("add member: channel %s: %w", channelID, err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_members (channel_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING
	`, channelID, userID)
	return err
}

func (s *SQLite) CreateBot(ctx context.Context, b model.Bot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bots (id, team_id, name) VALUES (?, ?, ?) ON CONFLICT DO NOTHING
	`, b.ID, b.TeamID, b.Name)
	return err
}

func (s *SQLite) AddForbiddenWord(ctx context.Context, teamID uuid.UUID, word string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forbidden_words (team_id, word) VALUES (?, ?) ON CONFLICT DO NOTHING
	`, teamID, word)
	return err
}

func (s *SQLite) DeleteChannel(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	return err
}
