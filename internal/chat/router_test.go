package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamchat/internal/model"
	"teamchat/internal/notify"
)

func TestSendToSelfIsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for _, role := range []model.Role{model.RoleMember, model.RoleAdmin, model.RoleBot} {
		actor := model.Actor{ID: e.u1.ID, TeamID: e.team, Role: role}
		_, err := e.svc.Send(ctx, actor, SendRequest{DestinationID: e.u1.ID, Content: "me"})
		require.ErrorIs(t, err, ErrInvalidDestination)
	}

	// The check does not depend on the team either.
	stranger := model.Actor{ID: uuid.New(), TeamID: uuid.New()}
	_, err := e.svc.Send(ctx, stranger, SendRequest{DestinationID: stranger.ID})
	require.ErrorIs(t, err, ErrInvalidDestination)

	assert.Zero(t, e.store.transactions.Load())
	assert.Empty(t, e.notifier.Events())
}

func TestSendUnknownDestination(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Send(context.Background(), actorOf(e.u1), SendRequest{DestinationID: uuid.New(), Content: "hello?"})
	require.ErrorIs(t, err, ErrDestinationNotFound)
	assert.Zero(t, e.store.transactions.Load())
}

func TestSendAcrossTeamsIsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	otherTeam := uuid.New()
	outsider := model.User{ID: uuid.New(), TeamID: otherTeam}
	foreign := model.Channel{ID: uuid.New(), TeamID: otherTeam, Name: "elsewhere"}
	require.NoError(t, e.store.CreateUser(ctx, outsider))
	require.NoError(t, e.store.CreateChannel(ctx, foreign))

	_, err := e.svc.Send(ctx, actorOf(e.u1), SendRequest{DestinationID: outsider.ID, Content: "hi"})
	require.ErrorIs(t, err, ErrNotInTeam)

	_, err = e.svc.Send(ctx, actorOf(e.u1), SendRequest{DestinationID: foreign.ID, Content: "hi"})
	require.ErrorIs(t, err, ErrNotInTeam)

	assert.Zero(t, e.store.transactions.Load())
}

func TestSendRejectsUnknownContentType(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Send(context.Background(), actorOf(e.u1), SendRequest{
		DestinationID: e.u2.ID, Content: "x", ContentType: "VIDEO",
	})
	require.ErrorIs(t, err, ErrInvalidContentType)
}

func TestSendDefaultsToText(t *testing.T) {
	e := newEnv(t)
	msg := e.send(t, e.u1, e.u2.ID, "hi")
	assert.Equal(t, model.ContentText, msg.ContentType)
	assert.Equal(t, model.DeliveryDirect, msg.DeliveryMode)
	assert.Equal(t, e.team, msg.TeamID)
}

func TestChannelFanOut(t *testing.T) {
	e := newEnv(t)

	// Scenario A
	msg := e.send(t, e.u1, e.channel.ID, "no spam here")
	assert.Equal(t, model.DeliveryChannel, msg.DeliveryMode)
	assert.Equal(t, "no spam here", msg.Content, "stored content is not censored")

	assert.Equal(t, 0, e.offset(t, e.u1.ID, e.channel.ID))
	assert.Equal(t, 1, e.offset(t, e.u2.ID, e.channel.ID))
	assert.Equal(t, 1, e.offset(t, e.u3.ID, e.channel.ID))

	e.send(t, e.u1, e.channel.ID, "again")
	e.send(t, e.u2, e.channel.ID, "reply")
	assert.Equal(t, 1, e.offset(t, e.u1.ID, e.channel.ID))
	assert.Equal(t, 0, e.offset(t, e.u2.ID, e.channel.ID))
	assert.Equal(t, 3, e.offset(t, e.u3.ID, e.channel.ID))
}

func TestChannelSendFromNonMemberIsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	lurker := model.User{ID: uuid.New(), TeamID: e.team, Username: "lurker"}
	require.NoError(t, e.store.CreateUser(ctx, lurker))

	_, err := e.svc.Send(ctx, actorOf(lurker), SendRequest{DestinationID: e.channel.ID, Content: "hello all"})
	require.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, e.store.transactions.Load())

	_, ok, err := e.store.Offset(ctx, model.LedgerKey{ParticipantID: lurker.ID, ConversationID: e.channel.ID, TeamID: e.team})
	require.NoError(t, err)
	assert.False(t, ok, "no ledger row for a rejected sender")
	for _, u := range []model.User{e.u1, e.u2, e.u3} {
		assert.Equal(t, 0, e.offset(t, u.ID, e.channel.ID))
	}
	assert.Empty(t, e.notifier.Events())

	// Once a member, the sender can both post and read the channel.
	require.NoError(t, e.store.AddChannelMember(ctx, e.channel.ID, lurker.ID))
	e.send(t, lurker, e.channel.ID, "hello all")
	items, err := e.svc.History(ctx, actorOf(lurker), e.channel.ID, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestDirectSymmetry(t *testing.T) {
	e := newEnv(t)

	e.send(t, e.u1, e.u2.ID, "ping")
	assert.Equal(t, 1, e.offset(t, e.u2.ID, e.u1.ID))
	assert.Equal(t, 0, e.offset(t, e.u1.ID, e.u2.ID))

	e.send(t, e.u1, e.u2.ID, "ping again")
	assert.Equal(t, 2, e.offset(t, e.u2.ID, e.u1.ID))

	e.send(t, e.u2, e.u1.ID, "pong")
	assert.Equal(t, 0, e.offset(t, e.u2.ID, e.u1.ID))
	assert.Equal(t, 1, e.offset(t, e.u1.ID, e.u2.ID))
}

func TestSendPersistsClassifiedMentions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	unknown := uuid.New()

	msg := e.send(t, e.u1, e.channel.ID, "@u2 @general @helper", e.u2.ID, e.channel.ID, e.bot.ID, unknown)

	targets, err := e.store.MessageMentions(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.MentionTarget{
		model.UserTarget(e.u2.ID),
		model.ChannelTarget(e.channel.ID),
		model.BotTarget(e.bot.ID),
		model.BotTarget(unknown),
	}, targets)
}

func TestSendRollsBackOnStorageFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.send(t, e.u2, e.channel.ID, "before")
	e.store.mentionsErr = errors.New("disk full")

	_, err := e.svc.Send(ctx, actorOf(e.u1), SendRequest{
		DestinationID: e.channel.ID, Content: "lost", MentionIDs: []uuid.UUID{e.u2.ID},
	})
	require.ErrorIs(t, err, ErrDeliveryFailed)
	assert.NotErrorIs(t, err, ErrDestinationVanished)

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.False(t, derr.Vanished)

	// Ledger and messages are as they were before the failed send.
	assert.Equal(t, 1, e.offset(t, e.u1.ID, e.channel.ID))
	assert.Equal(t, 0, e.offset(t, e.u2.ID, e.channel.ID))
	assert.Equal(t, 1, e.offset(t, e.u3.ID, e.channel.ID))

	page, err := e.store.ConversationMessages(ctx, e.team, model.ChannelConversation(e.channel.ID), 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "before", page[0].Content)

	assert.Len(t, e.notifier.Events(), 1, "no event for the failed send")
}

func TestSendDetectsVanishedChannel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.store.beforeTx = func() {
		require.NoError(t, e.store.DeleteChannel(ctx, e.channel.ID))
	}

	_, err := e.svc.Send(ctx, actorOf(e.u1), SendRequest{DestinationID: e.channel.ID, Content: "anyone?"})
	require.ErrorIs(t, err, ErrDeliveryFailed)
	require.ErrorIs(t, err, ErrDestinationVanished)

	for _, u := range []model.User{e.u1, e.u2, e.u3} {
		_, ok, err := e.store.Offset(ctx, model.LedgerKey{ParticipantID: u.ID, ConversationID: e.channel.ID, TeamID: e.team})
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Empty(t, e.notifier.Events())
}

func TestSendQueuesNotification(t *testing.T) {
	e := newEnv(t)
	msg := e.send(t, e.u1, e.channel.ID, "hello")

	events := e.notifier.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, notify.EventMessageCreated, ev.Type)
	assert.Equal(t, msg.ID, ev.MessageID)
	assert.Equal(t, model.ChannelConversation(e.channel.ID).String(), ev.Conversation)
	assert.ElementsMatch(t, []uuid.UUID{e.u2.ID, e.u3.ID}, ev.Recipients)
}

type failingPublisher struct{ calls chan struct{} }

func (p failingPublisher) Publish(context.Context, string, []byte) error {
	p.calls <- struct{}{}
	return errors.New("broker unreachable")
}

func TestNotificationFailureDoesNotAffectSend(t *testing.T) {
	pub := failingPublisher{calls: make(chan struct{}, 1)}
	d := notify.NewDispatcher(pub, 1, 4, time.Second, zerolog.Nop())
	d.Start()
	defer d.Stop(context.Background())

	e := newEnv(t, func(o *Options) { o.Notifier = d })
	msg := e.send(t, e.u1, e.u2.ID, "still delivered")
	assert.NotNil(t, msg)

	select {
	case <-pub.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher was not called")
	}
	assert.Equal(t, 1, e.offset(t, e.u2.ID, e.u1.ID))
}

func TestFullNotificationQueueDoesNotBlockSend(t *testing.T) {
	// Never started and unbuffered, so every event is dropped.
	d := notify.NewDispatcher(failingPublisher{calls: make(chan struct{})}, 1, 0, time.Second, zerolog.Nop())

	e := newEnv(t, func(o *Options) { o.Notifier = d })
	e.send(t, e.u1, e.u2.ID, "one")
	e.send(t, e.u1, e.u2.ID, "two")
	assert.Equal(t, 2, e.offset(t, e.u2.ID, e.u1.ID))
}

type denyAll struct{}

func (denyAll) AuthorizeChannel(context.Context, model.Actor, uuid.UUID) error {
	return errors.New("posting disabled")
}

func TestChannelAuthorizerRejects(t *testing.T) {
	e := newEnv(t, func(o *Options) { o.Authorizer = denyAll{} })

	_, err := e.svc.Send(context.Background(), actorOf(e.u1), SendRequest{DestinationID: e.channel.ID, Content: "x"})
	require.ErrorIs(t, err, ErrForbidden)
	assert.ErrorContains(t, err, "posting disabled")
	assert.Zero(t, e.store.transactions.Load())

	// Direct sends do not consult the authorizer.
	e.send(t, e.u1, e.u2.ID, "fine")
}
