// internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"teamchat/internal/model"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Storage struct {
	DB *sql.DB
}

var _ Store = (*Storage)(nil)

func NewStorage(dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	return &Storage{DB: db}, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *Storage) Close() error {
	return s.DB.Close()
}

// EnsurePartition creates a team partition if not exists
func (s *Storage) EnsurePartition(ctx context.Context, teamID uuid.UUID) error {
	partitionName := pq.QuoteIdentifier("messages_" + strings.ReplaceAll(teamID.String(), "-", ""))
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s PARTITION OF messages
		FOR VALUES IN ('%s')`, partitionName, teamID.String())

	if _, err := s.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create partition: %w", err)
	}
	return nil
}

func (s *Storage) FindUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u := &model.User{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, team_id, username, first_name, last_name
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.TeamID, &u.Username, &u.FirstName, &u.LastName)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Storage) FindChannel(ctx context.Context, id uuid.UUID) (*model.Channel, error) {
	c := &model.Channel{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, team_id, name FROM channels WHERE id = $1
	`, id).Scan(&c.ID, &c.TeamID, &c.Name)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *Storage) FindBot(ctx context.Context, id uuid.UUID) (*model.Bot, error) {
	b := &model.Bot{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, team_id, name FROM bots WHERE id = $1
	`, id).Scan(&b.ID, &b.TeamID, &b.Name)
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

func (s *Storage) IsChannelMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := s.DB.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2)
	`, channelID, userID).Scan(&ok)
	return ok, err
}

func (s *Storage) ForbiddenWords(ctx context.Context, teamID uuid.UUID) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT word FROM forbidden_words WHERE team_id = $1 ORDER BY id
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

func (s *Storage) MessageMentions(ctx context.Context, messageID uuid.UUID) ([]model.MentionTarget, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT target_kind, target_id FROM mentions
		WHERE message_id = $1
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

const messageColumns = `id, sender_id, receiver_id, team_id, content, delivery_mode, content_type, created_at`

func (s *Storage) LatestDirectMessages(ctx context.Context, teamID, participantID uuid.UUID) ([]model.Message, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT DISTINCT ON (conversation_key) `+messageColumns+`
		FROM messages
		WHERE team_id = $1
		  AND delivery_mode = 'DIRECT'
		  AND (sender_id = $2 OR receiver_id = $2)
		ORDER BY conversation_key, created_at DESC, seq DESC
	`, teamID, participantID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return scanMessages(rows)
}

func (s *Storage) LatestChannelMessages(ctx context.Context, teamID, memberID uuid.UUID) ([]model.Message, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT DISTINCT ON (m.receiver_id) m.id, m.sender_id, m.receiver_id, m.team_id,
		       m.content, m.delivery_mode, m.content_type, m.created_at
		FROM messages m
		JOIN channel_members cm ON cm.channel_id = m.receiver_id AND cm.user_id = $2
		WHERE m.team_id = $1
		  AND m.delivery_mode = 'CHANNEL'
		ORDER BY m.receiver_id, m.created_at DESC, m.seq DESC
	`, teamID, memberID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return scanMessages(rows)
}

func (s *Storage) ConversationMessages(ctx context.Context, teamID uuid.UUID, conv model.ConversationKey, offset, limit int) ([]model.Message, error) {
	return conversationMessages(ctx, s.DB, teamID, conv, offset, limit)
}

func (s *Storage) Offset(ctx context.Context, key model.LedgerKey) (int, bool, error) {
	return ledgerOffset(ctx, s.DB, key)
}

func (s *Storage) ResetOffset(ctx context.Context, key model.LedgerKey) error {
	return ledgerReset(ctx, s.DB, key)
}

func (s *Storage) ApplyOffsets(ctx context.Context, updates []model.LedgerUpdate) error {
	return ledgerApply(ctx, s.DB, updates)
}

func (s *Storage) LockOffset(ctx context.Context, key model.LedgerKey) (int, error) {
	return ledgerLock(ctx, s.DB, key)
}

// WithTx runs fn under read committed isolation. Ledger rows are mutated by
// single upsert statements, so the row lock taken by each upsert is enough to
// serialize concurrent senders.
func (s *Storage) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	if err := fn(&pgTx{tx: sqlTx}); err != nil {
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

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) LockDestination(ctx context.Context, mode model.DeliveryMode, id uuid.UUID) (bool, error) {
	table := "users"
	if mode == model.DeliveryChannel {
		table = "channels"
	}
	var found int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = $1 FOR SHARE`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *pgTx) InsertMessage(ctx context.Context, m *model.Message) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO messages (id, team_id, sender_id, receiver_id, conversation_key,
		                      content, delivery_mode, content_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.TeamID, m.SenderID, m.ReceiverID, m.Conversation().String(),
		m.Content, m.DeliveryMode, m.ContentType, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (t *pgTx) ChannelMemberIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT user_id FROM channel_members WHERE channel_id = $1 ORDER BY user_id
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

func (t *pgTx) InsertMentions(ctx context.Context, m *model.Message, targets []model.MentionTarget) error {
	for i, target := range targets {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO mentions (team_id, message_id, position, target_id, target_kind)
			VALUES ($1, $2, $3, $4, $5)
		`, m.TeamID, m.ID, i, target.ID, target.Kind)
		if err != nil {
			return fmt.Errorf("insert mention %d: %w", i, err)
		}
	}
	return nil
}

func (t *pgTx) Offset(ctx context.Context, key model.LedgerKey) (int, bool, error) {
	return ledgerOffset(ctx, t.tx, key)
}

func (t *pgTx) ResetOffset(ctx context.Context, key model.LedgerKey) error {
	return ledgerReset(ctx, t.tx, key)
}

func (t *pgTx) ApplyOffsets(ctx context.Context, updates []model.LedgerUpdate) error {
	return ledgerApply(ctx, t.tx, updates)
}

func (t *pgTx) LockOffset(ctx context.Context, key model.LedgerKey) (int, error) {
	return ledgerLock(ctx, t.tx, key)
}

func (t *pgTx) ConversationMessages(ctx context.Context, teamID uuid.UUID, conv model.ConversationKey, offset, limit int) ([]model.Message, error) {
	return conversationMessages(ctx, t.tx, teamID, conv, offset, limit)
}

func conversationMessages(ctx context.Context, q querier, teamID uuid.UUID, conv model.ConversationKey, offset, limit int) ([]model.Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE team_id = $1 AND conversation_key = $2
		ORDER BY created_at DESC, seq DESC
		LIMIT $3 OFFSET $4
	`, teamID, conv.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return scanMessages(rows)
}

func ledgerOffset(ctx context.Context, q querier, key model.LedgerKey) (int, bool, error) {
	var offset int
	err := q.QueryRowContext(ctx, `
		SELECT unseen_offset FROM conversation_ledger
		WHERE participant_id = $1 AND conversation_id = $2 AND team_id = $3
	`, key.ParticipantID, key.ConversationID, key.TeamID).Scan(&offset)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return offset, true, nil
}

func ledgerReset(ctx context.Context, q querier, key model.LedgerKey) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO conversation_ledger (participant_id, conversation_id, team_id, unseen_offset)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (participant_id, conversation_id, team_id)
		DO UPDATE SET unseen_offset = 0, updated_at = NOW()
	`, key.ParticipantID, key.ConversationID, key.TeamID)
	if err != nil {
		return fmt.Errorf("reset offset: %w", err)
	}
	return nil
}

// ledgerLock takes the row lock with a no-op upsert. Unlike SELECT ... FOR
// UPDATE it also covers a row another transaction is about to insert: the
// upsert waits for that insert and then locks the committed row.
func ledgerLock(ctx context.Context, q querier, key model.LedgerKey) (int, error) {
	var offset int
	err := q.QueryRowContext(ctx, `
		INSERT INTO conversation_ledger (participant_id, conversation_id, team_id, unseen_offset)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (participant_id, conversation_id, team_id)
		DO UPDATE SET unseen_offset = conversation_ledger.unseen_offset
		RETURNING unseen_offset
	`, key.ParticipantID, key.ConversationID, key.TeamID).Scan(&offset)
	if err != nil {
		return 0, fmt.Errorf("lock offset: %w", err)
	}
	return offset, nil
}

// ledgerApply upserts all updates in one statement, in the order given. A
// delta of 0 resets the row and 1 increments it.
func ledgerApply(ctx context.Context, q querier, updates []model.LedgerUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	participants := make([]string, len(updates))
	conversations := make([]string, len(updates))
	teams := make([]string, len(updates))
	deltas := make([]int64, len(updates))
	for i, u := range updates {
		participants[i] = u.Key.ParticipantID.String()
		conversations[i] = u.Key.ConversationID.String()
		teams[i] = u.Key.TeamID.String()
		if !u.Reset {
			deltas[i] = 1
		}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO conversation_ledger (participant_id, conversation_id, team_id, unseen_offset)
		SELECT k.participant_id, k.conversation_id, k.team_id, k.delta
		FROM unnest($1::uuid[], $2::uuid[], $3::uuid[], $4::int[]) WITH ORDINALITY
		     AS k(participant_id, conversation_id, team_id, delta, ord)
		ORDER BY k.ord
		ON CONFLICT (participant_id, conversation_id, team_id)
		DO UPDATE SET unseen_offset = CASE WHEN EXCLUDED.unseen_offset = 0 THEN 0
		                                   ELSE conversation_ledger.unseen_offset + 1 END,
		              updated_at = NOW()
	`, pq.Array(participants), pq.Array(conversations), pq.Array(teams), pq.Array(deltas))
	if err != nil {
		return fmt.Errorf("apply offsets: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]model.Message, error) {
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.TeamID, &m.Content,
			&m.DeliveryMode, &m.ContentType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
