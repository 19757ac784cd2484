package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"teamchat/internal/model"
)

// Seed describes directory rows to preload, usually into a SQLite store
// when running without PostgreSQL.
type Seed struct {
	Users []struct {
		ID        uuid.UUID `yaml:"id"`
		TeamID    uuid.UUID `yaml:"team_id"`
		Username  string    `yaml:"username"`
		FirstName string    `yaml:"first_name"`
		LastName  string    `yaml:"last_name"`
	} `yaml:"users"`

	Channels []struct {
		ID      uuid.UUID   `yaml:"id"`
		TeamID  uuid.UUID   `yaml:"team_id"`
		Name    string      `yaml:"name"`
		Members []uuid.UUID `yaml:"members"`
	} `yaml:"channels"`

	Bots []struct {
		ID     uuid.UUID `yaml:"id"`
		TeamID uuid.UUID `yaml:"team_id"`
		Name   string    `yaml:"name"`
	} `yaml:"bots"`

	ForbiddenWords map[uuid.UUID][]string `yaml:"forbidden_words"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	seed := &Seed{}
	if err := yaml.Unmarshal(data, seed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal seed: %w", err)
	}
	return seed, nil
}

// Apply writes the seed through dir. Forbidden words keep their file order.
func (s *Seed) Apply(ctx context.Context, dir Directory) error {
	for _, u := range s.Users {
		err := dir.CreateUser(ctx, model.User{
			ID: u.ID, TeamID: u.TeamID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName,
		})
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	for _, c := range s.Channels {
		if err := dir.CreateChannel(ctx, model.Channel{ID: c.ID, TeamID: c.TeamID, Name: c.Name}); err != nil {
			return fmt.Errorf("seed channel %s: %w", c.ID, err)
		}
		for _, member := range c.Members {
			if err := dir.AddChannelMember(ctx, c.ID, member); err != nil {
				return fmt.Errorf("seed member %s of %s: %w", member, c.ID, err)
			}
		}
	}
	for _, b := range s.Bots {
		if err := dir.CreateBot(ctx, model.Bot{ID: b.ID, TeamID: b.TeamID, Name: b.Name}); err != nil {
			return fmt.Errorf("seed bot %s: %w", b.ID, err)
		}
	}
	for teamID, words := range s.ForbiddenWords {
		for _, w := range words {
			if err := dir.AddForbiddenWord(ctx, teamID, w); err != nil {
				return fmt.Errorf("seed forbidden word for %s: %w", teamID, err)
			}
		}
	}
	return nil
}
