package model

import "github.com/google/uuid"

type MentionKind string

const (
	MentionUser    MentionKind = "user"
	MentionChannel MentionKind = "channel"
	MentionBot     MentionKind = "bot"
)

// MentionTarget is the persisted form of a mention. Its kind is decided when
// the message is sent.
type MentionTarget struct {
	Kind MentionKind `db:"target_kind" json:"kind"`
	ID   uuid.UUID   `db:"target_id" json:"id"`
}

func UserTarget(id uuid.UUID) MentionTarget    { return MentionTarget{Kind: MentionUser, ID: id} }
func ChannelTarget(id uuid.UUID) MentionTarget { return MentionTarget{Kind: MentionChannel, ID: id} }
func BotTarget(id uuid.UUID) MentionTarget     { return MentionTarget{Kind: MentionBot, ID: id} }

// ResolvedMention is a mention decorated with the target's identity. The
// concrete type is one of UserMention, ChannelMention or BotMention.
type ResolvedMention interface {
	TargetID() uuid.UUID
	resolvedMention()
}

type UserMention struct {
	ID        uuid.UUID
	Username  string
	FirstName string
	LastName  string
}

type ChannelMention struct {
	ID   uuid.UUID
	Name string
}

type BotMention struct {
	ID   uuid.UUID
	Name string
}

func (m UserMention) TargetID() uuid.UUID    { return m.ID }
func (m ChannelMention) TargetID() uuid.UUID { return m.ID }
func (m BotMention) TargetID() uuid.UUID     { return m.ID }

func (UserMention) resolvedMention()    {}
func (ChannelMention) resolvedMention() {}
func (BotMention) resolvedMention()     {}
