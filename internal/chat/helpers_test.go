package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"teamchat/internal/manager"
	"teamchat/internal/model"
	"teamchat/internal/notify"
	"teamchat/internal/storage"
)

// faultyStore wraps an in-memory SQLite store to inject failures around a
// transaction.
type faultyStore struct {
	*storage.SQLite
	beforeTx     func()
	mentionsErr  error
	transactions atomic.Int32
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	f.transactions.Add(1)
	if f.beforeTx != nil {
		f.beforeTx()
	}
	return f.SQLite.WithTx(ctx, func(tx storage.Tx) error {
		if f.mentionsErr != nil {
			tx = faultyTx{Tx: tx, err: f.mentionsErr}
		}
		return fn(tx)
	})
}

type faultyTx struct {
	storage.Tx
	err error
}

func (t faultyTx) InsertMentions(context.Context, *model.Message, []model.MentionTarget) error {
	return t.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) Events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

// clock returns strictly increasing times, one second apart.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type env struct {
	store    *faultyStore
	svc      *Service
	teams    *manager.TeamManager
	notifier *recordingNotifier
	team     uuid.UUID
	u1       model.User
	u2       model.User
	u3       model.User
	bot      model.Bot
	channel  model.Channel
}

// newEnv builds a team with three users, a bot and channel C = {u1, u2, u3}
// that forbids "spam".
func newEnv(t *testing.T, opts ...func(*Options)) *env {
	t.Helper()
	ctx := context.Background()

	db, err := storage.NewSQLite(ctx, "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := &env{
		store:    &faultyStore{SQLite: db},
		notifier: &recordingNotifier{},
		team:     uuid.New(),
	}
	e.u1 = model.User{ID: uuid.New(), TeamID: e.team, Username: "u1", FirstName: "Una"}
	e.u2 = model.User{ID: uuid.New(), TeamID: e.team, Username: "u2", FirstName: "Dos"}
	e.u3 = model.User{ID: uuid.New(), TeamID: e.team, Username: "u3", FirstName: "Tres"}
	e.bot = model.Bot{ID: uuid.New(), TeamID: e.team, Name: "helper"}
	e.channel = model.Channel{ID: uuid.New(), TeamID: e.team, Name: "general"}

	for _, u := range []model.User{e.u1, e.u2, e.u3} {
		require.NoError(t, e.store.CreateUser(ctx, u))
	}
	require.NoError(t, e.store.CreateBot(ctx, e.bot))
	require.NoError(t, e.store.CreateChannel(ctx, e.channel))
	for _, u := range []model.User{e.u1, e.u2, e.u3} {
		require.NoError(t, e.store.AddChannelMember(ctx, e.channel.ID, u.ID))
	}
	require.NoError(t, e.store.AddForbiddenWord(ctx, e.team, "spam"))

	teams, err := manager.NewTeamManager(e.store, nil, manager.Options{Mask: '*'}, zerolog.Nop())
	require.NoError(t, err)

	o := Options{Notifier: e.notifier, Now: newClock().Now}
	for _, fn := range opts {
		fn(&o)
	}
	e.teams = teams
	e.svc = NewService(e.store, teams, o, zerolog.Nop())
	return e
}

func actorOf(u model.User) model.Actor {
	return model.Actor{ID: u.ID, TeamID: u.TeamID, Role: model.RoleMember}
}

func (e *env) send(t *testing.T, from model.User, to uuid.UUID, content string, mentions ...uuid.UUID) *model.Message {
	t.Helper()
	msg, err := e.svc.Send(context.Background(), actorOf(from), SendRequest{
		DestinationID: to,
		Content:       content,
		MentionIDs:    mentions,
	})
	require.NoError(t, err)
	return msg
}

// offset reads participant's ledger entry for conversationID.
func (e *env) offset(t *testing.T, participant, conversationID uuid.UUID) int {
	t.Helper()
	n, _, err := e.store.Offset(context.Background(), model.LedgerKey{
		ParticipantID: participant, ConversationID: conversationID, TeamID: e.team,
	})
	require.NoError(t, err)
	return n
}
