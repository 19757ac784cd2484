package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
users:
  - id: 7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c0001
    team_id: 7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c00aa
    username: alice
    first_name: Alice
    last_name: Liddell
  - id: 7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c0002
    team_id: 7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c00aa
    username: bob
channels:
  - id: 7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c0c01
    team_id: 7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c00aa
    name: general
    members:
      - 7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c0001
      - 7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c0002
bots:
  - id: 7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c0b01
    team_id: 7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c00aa
    name: deploybot
forbidden_words:
  7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c00aa: [spam, eggs]
`

func TestLoadSeedAndApply(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)

	m := newSQLite(t)
	require.NoError(t, seed.Apply(ctx, m))

	team := uuid.MustParse("7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c00aa")
	alice, err := m.FindUser(ctx, uuid.MustParse("7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c0001"))
	require.NoError(t, err)
	assert.Equal(t, "alice", alice.Username)
	assert.Equal(t, team, alice.TeamID)

	member, err := m.IsChannelMember(ctx,
		uuid.MustParse("7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c0c01"),
		uuid.MustParse("7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c0002"))
	require.NoError(t, err)
	assert.True(t, member)

	bot, err := m.FindBot(ctx, uuid.MustParse("7b0e5c1e-5d1a-4c55-9d0b-0d7a4a0c0b01"))
	require.NoError(t, err)
	assert.Equal(t, "deploybot", bot.Name)

	words, err := m.ForbiddenWords(ctx, team)
	require.NoError(t, err)
	assert.Equal(t, []string{"spam", "eggs"}, words)
}

func TestLoadSeedMissingFile(t *testing.T) {
	_, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
