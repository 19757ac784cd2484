// internal/model/message.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryMode string

const (
	DeliveryDirect  DeliveryMode = "DIRECT"
	DeliveryChannel DeliveryMode = "CHANNEL"
)

type ContentType string

const (
	ContentText  ContentType = "TEXT"
	ContentImage ContentType = "IMAGE"
	ContentFile  ContentType = "FILE"
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	switch t {
	case ContentText, ContentImage, ContentFile:
		return true
	}
	return false
}

// Message is immutable once stored. ReceiverID is the peer user for DIRECT
// messages and the channel for CHANNEL messages.
type Message struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	SenderID     uuid.UUID    `db:"sender_id" json:"sender_id"`
	ReceiverID   uuid.UUID    `db:"receiver_id" json:"receiver_id"`
	TeamID       uuid.UUID    `db:"team_id" json:"team_id"`
	Content      string       `db:"content" json:"content"`
	DeliveryMode DeliveryMode `db:"delivery_mode" json:"delivery_mode"`
	ContentType  ContentType  `db:"content_type" json:"content_type"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}

// Conversation returns the conversation the message belongs to.
func (m Message) Conversation() ConversationKey {
	if m.DeliveryMode == DeliveryChannel {
		return ChannelConversation(m.ReceiverID)
	}
	return DirectConversation(m.SenderID, m.ReceiverID)
}
