package chat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamchat/internal/model"
)

func TestPreviewsScenarioA(t *testing.T) {
	e := newEnv(t)
	e.send(t, e.u1, e.channel.ID, "no spam here")

	previews, err := e.svc.Previews(context.Background(), actorOf(e.u2))
	require.NoError(t, err)
	require.Len(t, previews, 1)

	p := previews[0]
	assert.Equal(t, model.DeliveryChannel, p.Mode)
	assert.Equal(t, e.channel.ID, p.ConversationID)
	require.NotNil(t, p.Channel)
	assert.Equal(t, "general", p.Channel.Name)
	assert.Nil(t, p.Peer)
	assert.Equal(t, "no **** here", p.Content)
	assert.Equal(t, "no spam here", p.Message.Content)
	assert.True(t, p.Unseen)
}

func TestPreviewsScenarioB(t *testing.T) {
	e := newEnv(t)
	e.send(t, e.u1, e.u2.ID, "hi")

	forU2, err := e.svc.Previews(context.Background(), actorOf(e.u2))
	require.NoError(t, err)
	require.Len(t, forU2, 1)
	assert.Equal(t, model.DeliveryDirect, forU2[0].Mode)
	assert.Equal(t, e.u1.ID, forU2[0].ConversationID)
	assert.Equal(t, model.SenderFromUser(e.u1), forU2[0].Peer)
	assert.True(t, forU2[0].Unseen)

	forU1, err := e.svc.Previews(context.Background(), actorOf(e.u1))
	require.NoError(t, err)
	require.Len(t, forU1, 1)
	assert.Equal(t, e.u2.ID, forU1[0].ConversationID)
	assert.Equal(t, model.SenderFromUser(e.u2), forU1[0].Peer)
	assert.False(t, forU1[0].Unseen)
}

func TestPreviewsNewestFirstAcrossModes(t *testing.T) {
	e := newEnv(t)
	e.send(t, e.u2, e.u1.ID, "direct old")
	e.send(t, e.u3, e.channel.ID, "channel mid")
	e.send(t, e.u3, e.u1.ID, "direct new")
	e.send(t, e.u2, e.u1.ID, "direct newest")

	previews, err := e.svc.Previews(context.Background(), actorOf(e.u1))
	require.NoError(t, err)
	require.Len(t, previews, 3)
	assert.Equal(t, "direct newest", previews[0].Content)
	assert.Equal(t, "direct new", previews[1].Content)
	assert.Equal(t, "channel mid", previews[2].Content)
}

func TestPreviewsSkipChannelsWithoutTraffic(t *testing.T) {
	e := newEnv(t)
	previews, err := e.svc.Previews(context.Background(), actorOf(e.u1))
	require.NoError(t, err)
	assert.Empty(t, previews)
}

func TestPreviewsRenderBotPeerAndMentions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Bots send through the same path with their own id as the actor.
	botActor := model.Actor{ID: e.bot.ID, TeamID: e.team, Role: model.RoleBot}
	_, err := e.svc.Send(ctx, botActor, SendRequest{
		DestinationID: e.u1.ID, Content: "deploy done @u1", MentionIDs: []uuid.UUID{e.u1.ID},
	})
	require.NoError(t, err)

	previews, err := e.svc.Previews(ctx, actorOf(e.u1))
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Equal(t, model.BotSender{ID: e.bot.ID, Name: "helper"}, previews[0].Peer)
	require.Len(t, previews[0].Mentions, 1)
	assert.Equal(t, model.UserMention{ID: e.u1.ID, Username: "u1", FirstName: "Una"}, previews[0].Mentions[0])
}

func preview(mode model.DeliveryMode, id uuid.UUID, at time.Time) Preview {
	return Preview{Mode: mode, ConversationID: id, Message: model.Message{CreatedAt: at}}
}

func TestMergeNewestFirstIsStable(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d1, d2, d3 := uuid.New(), uuid.New(), uuid.New()
	c1, c2 := uuid.New(), uuid.New()

	direct := []Preview{
		preview(model.DeliveryDirect, d1, base.Add(3*time.Second)),
		preview(model.DeliveryDirect, d2, base.Add(2*time.Second)),
		preview(model.DeliveryDirect, d3, base.Add(2*time.Second)),
	}
	channel := []Preview{
		preview(model.DeliveryChannel, c1, base.Add(4*time.Second)),
		preview(model.DeliveryChannel, c2, base.Add(2*time.Second)),
	}

	merged := mergeNewestFirst(direct, channel)
	ids := make([]uuid.UUID, len(merged))
	for i, p := range merged {
		ids[i] = p.ConversationID
	}
	assert.Equal(t, []uuid.UUID{c1, d1, d2, d3, c2}, ids)
}

func TestSortNewestFirstKeepsTies(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := []model.Message{
		{Content: "a", CreatedAt: at},
		{Content: "b", CreatedAt: at.Add(time.Second)},
		{Content: "c", CreatedAt: at},
	}
	sortNewestFirst(msgs)
	assert.Equal(t, []string{"b", "a", "c"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
}

func TestMergeNewestFirstEmptyInputs(t *testing.T) {
	assert.Empty(t, mergeNewestFirst(nil, nil))
	one := []Preview{preview(model.DeliveryDirect, uuid.New(), time.Now())}
	assert.Equal(t, one, mergeNewestFirst(one, nil))
	assert.Equal(t, one, mergeNewestFirst(nil, one))
}
