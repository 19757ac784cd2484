package model

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// ConversationKey identifies a conversation. For DIRECT conversations A and B
// hold the two participants in canonical (byte) order; for CHANNEL
// conversations A is the channel and B is uuid.Nil.
type ConversationKey struct {
	Mode DeliveryMode
	A    uuid.UUID
	B    uuid.UUID
}

// DirectConversation returns the key of the direct conversation between x
// and y. The result does not depend on argument order.
func DirectConversation(x, y uuid.UUID) ConversationKey {
	if bytes.Compare(x[:], y[:]) > 0 {
		x, y = y, x
	}
	return ConversationKey{Mode: DeliveryDirect, A: x, B: y}
}

func ChannelConversation(channelID uuid.UUID) ConversationKey {
	return ConversationKey{Mode: DeliveryChannel, A: channelID}
}

// String is the form persisted in messages.conversation_key.
func (k ConversationKey) String() string {
	if k.Mode == DeliveryChannel {
		return fmt.Sprintf("c:%s", k.A)
	}
	return fmt.Sprintf("d:%s:%s", k.A, k.B)
}

// LedgerConversation returns the conversation id under which participant's
// ledger entry for this conversation is stored: the peer for DIRECT, the
// channel for CHANNEL.
func (k ConversationKey) LedgerConversation(participant uuid.UUID) uuid.UUID {
	if k.Mode == DeliveryChannel {
		return k.A
	}
	if k.A == participant {
		return k.B
	}
	return k.A
}
