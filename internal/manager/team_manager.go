// internal/manager/team_manager.go
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"teamchat/internal/censor"
)

// TeamStore is the storage the manager prepares and reads per team.
type TeamStore interface {
	censor.WordSource
	EnsurePartition(ctx context.Context, teamID uuid.UUID) error
}

// QueueDeclarer prepares a team's notification queue. Transports without
// per-team resources pass nil.
type QueueDeclarer interface {
	DeclareTeam(teamID string) error
}

type Options struct {
	CensorCacheSize int
	CensorTTL       time.Duration
	Mask            rune
}

// TeamManager prepares team-scoped resources on first use and caches each
// team's censor.
type TeamManager struct {
	storage TeamStore
	queues  QueueDeclarer
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	teams   map[uuid.UUID]struct{}
	censors *lru.Cache
}

type cachedCensor struct {
	censor   *censor.Censor
	loadedAt time.Time
}

func NewTeamManager(storage TeamStore, queues QueueDeclarer, opts Options, logger zerolog.Logger) (*TeamManager, error) {
	if opts.CensorCacheSize <= 0 {
		opts.CensorCacheSize = 256
	}
	cache, err := lru.New(opts.CensorCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create censor cache: %w", err)
	}
	return &TeamManager{
		storage: storage,
		queues:  queues,
		opts:    opts,
		logger:  logger.With().Str("component", "team_manager").Logger(),
		now:     time.Now,
		teams:   make(map[uuid.UUID]struct{}),
		censors: cache,
	}, nil
}

// EnsureTeam creates the team's message partition and notification queue
// the first time the team is seen by this process.
func (tm *TeamManager) EnsureTeam(ctx context.Context, teamID uuid.UUID) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if _, exists := tm.teams[teamID]; exists {
		return nil // already prepared
	}

	if err := tm.storage.EnsurePartition(ctx, teamID); err != nil {
		return err
	}

	if tm.queues != nil {
		if err := tm.queues.DeclareTeam(teamID.String()); err != nil {
			return err
		}
	}

	tm.teams[teamID] = struct{}{}
	tm.logger.Info().Str("team_id", teamID.String()).Msg("team prepared")
	return nil
}

// Censor returns the team's censor, loading its forbidden words when the
// cached copy is missing or older than the configured TTL.
func (tm *TeamManager) Censor(ctx context.Context, teamID uuid.UUID) (*censor.Censor, error) {
	if v, ok := tm.censors.Get(teamID); ok {
		cc := v.(cachedCensor)
		if tm.opts.CensorTTL <= 0 || tm.now().Sub(cc.loadedAt) < tm.opts.CensorTTL {
			return cc.censor, nil
		}
	}

	c, err := censor.Load(ctx, tm.storage, teamID, tm.opts.Mask)
	if err != nil {
		return nil, err
	}
	if c.Len() == 0 {
		tm.logger.Debug().Str("team_id", teamID.String()).Msg("team has no forbidden words")
	}
	tm.censors.Add(teamID, cachedCensor{censor: c, loadedAt: tm.now()})
	return c, nil
}

// ListTeamIDs returns all teams prepared by this process
func (tm *TeamManager) ListTeamIDs() []string {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	ids := make([]string, 0, len(tm.teams))
	for id := range tm.teams {
		ids = append(ids, id.String())
	}
	return ids
}
