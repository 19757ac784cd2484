// Package ledger keeps the per-participant unseen-offset counters of every
// conversation.
package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"teamchat/internal/model"
	"teamchat/internal/storage"
)

// Ledger wraps the atomic storage primitives. It is cheap to construct, so
// callers build one per transaction with New(tx).
type Ledger struct {
	store storage.LedgerStore
}

func New(store storage.LedgerStore) *Ledger {
	return &Ledger{store: store}
}

// GetOrDefault returns the unseen offset for key, or 0 when no entry exists.
func (l *Ledger) GetOrDefault(ctx context.Context, key model.LedgerKey) (int, error) {
	offset, _, err := l.store.Offset(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("ledger offset: %w", err)
	}
	return offset, nil
}

// Exists reports whether traffic has ever touched key.
func (l *Ledger) Exists(ctx context.Context, key model.LedgerKey) (bool, error) {
	_, ok, err := l.store.Offset(ctx, key)
	if err != nil {
		return false, fmt.Errorf("ledger offset: %w", err)
	}
	return ok, nil
}

// Claim returns the offset for key and holds the entry until the surrounding
// transaction ends, creating it at 0 when absent. Readers call it before
// loading a page so no send can slip in between the read and the Reset.
func (l *Ledger) Claim(ctx context.Context, key model.LedgerKey) (int, error) {
	offset, err := l.store.LockOffset(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("ledger claim: %w", err)
	}
	return offset, nil
}

func (l *Ledger) Reset(ctx context.Context, key model.LedgerKey) error {
	if err := l.store.ResetOffset(ctx, key); err != nil {
		return fmt.Errorf("ledger reset: %w", err)
	}
	return nil
}

func (l *Ledger) Increment(ctx context.Context, key model.LedgerKey) error {
	if err := l.store.ApplyOffsets(ctx, []model.LedgerUpdate{{Key: key}}); err != nil {
		return fmt.Errorf("ledger increment: %w", err)
	}
	return nil
}

// IncrementAll bumps conversation's offset for each participant, one row per
// participant.
func (l *Ledger) IncrementAll(ctx context.Context, teamID, conversationID uuid.UUID, participants []uuid.UUID) error {
	keys := make([]model.LedgerKey, len(participants))
	for i, id := range participants {
		keys[i] = model.LedgerKey{ParticipantID: id, ConversationID: conversationID, TeamID: teamID}
	}
	if err := l.apply(ctx, nil, keys); err != nil {
		return fmt.Errorf("ledger fan-out: %w", err)
	}
	return nil
}

// RecordSend resets the sender's row and increments every recipient's row in
// a single storage call.
func (l *Ledger) RecordSend(ctx context.Context, sender model.LedgerKey, recipients []model.LedgerKey) error {
	if err := l.apply(ctx, &sender, recipients); err != nil {
		return fmt.Errorf("ledger send: %w", err)
	}
	return nil
}

// apply drops duplicate keys and sorts the rest, so concurrent sends touching
// overlapping rows lock them in the same order. A recipient key equal to the
// reset key is dropped.
func (l *Ledger) apply(ctx context.Context, reset *model.LedgerKey, increments []model.LedgerKey) error {
	seen := make(map[model.LedgerKey]struct{}, len(increments)+1)
	updates := make([]model.LedgerUpdate, 0, len(increments)+1)
	if reset != nil {
		seen[*reset] = struct{}{}
		updates = append(updates, model.LedgerUpdate{Key: *reset, Reset: true})
	}
	for _, k := range increments {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		updates = append(updates, model.LedgerUpdate{Key: k})
	}
	if len(updates) == 0 {
		return nil
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].Key.Less(updates[j].Key) })
	return l.store.ApplyOffsets(ctx, updates)
}
