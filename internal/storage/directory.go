package storage

import (
	"context"

	"github.com/google/uuid"

	"teamchat/internal/model"
)

var _ Directory = (*Storage)(nil)

func (s *Storage) CreateUser(ctx context.Context, u model.User) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO users (id, team_id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING
	`, u.ID, u.TeamID, u.Username, u.FirstName, u.LastName)
	return err
}

func (s *Storage) CreateChannel(ctx context.Context, c model.Channel) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO channels (id, team_id, name) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING
	`, c.ID, c.TeamID, c.Name)
	return err
}

func (s *Storage) AddChannelMember(ctx context.Context, channelID, userID uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO channel_members (channel_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, channelID, userID)
	return err
}

func (s *Storage) CreateBot(ctx context.Context, b model.Bot) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO bots (id, team_id, name) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING
	`, b.ID, b.TeamID, b.Name)
	return err
}

func (s *Storage) AddForbiddenWord(ctx context.Context, teamID uuid.UUID, word string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO forbidden_words (team_id, word) VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, teamID, word)
	return err
}

func (s *Storage) DeleteChannel(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM channels WHERE id = $1`, id)
	return err
}
