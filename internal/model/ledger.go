package model

import (
	"bytes"

	"github.com/google/uuid"
)

// LedgerKey addresses one row of the conversation ledger.
type LedgerKey struct {
	ParticipantID  uuid.UUID `db:"participant_id"`
	ConversationID uuid.UUID `db:"conversation_id"`
	TeamID         uuid.UUID `db:"team_id"`
}

// LedgerKeyFor builds participant's ledger key for conversation conv.
func LedgerKeyFor(teamID, participant uuid.UUID, conv ConversationKey) LedgerKey {
	return LedgerKey{
		ParticipantID:  participant,
		ConversationID: conv.LedgerConversation(participant),
		TeamID:         teamID,
	}
}

// LedgerUpdate is one row change of a send: the sender's row is reset, every
// recipient's row is incremented.
type LedgerUpdate struct {
	Key   LedgerKey
	Reset bool
}

// Less orders keys by participant, then conversation, byte-wise. Postgres
// compares uuids the same way, so updates applied in this order take row
// locks in the same order in every transaction.
func (k LedgerKey) Less(o LedgerKey) bool {
	if c := bytes.Compare(k.ParticipantID[:], o.ParticipantID[:]); c != 0 {
		return c < 0
	}
	if c := bytes.Compare(k.ConversationID[:], o.ConversationID[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(k.TeamID[:], o.TeamID[:]) < 0
}
