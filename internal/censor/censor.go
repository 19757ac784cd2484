// Package censor masks a team's forbidden words in message content.
package censor

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"teamchat/internal/model"
)

const DefaultMask = '*'

// WordSource loads a team's forbidden words in their fixed processing order.
type WordSource interface {
	ForbiddenWords(ctx context.Context, teamID uuid.UUID) ([]string, error)
}

// Censor holds one team's forbidden words. It is immutable after
// construction and safe for concurrent use.
type Censor struct {
	teamID uuid.UUID
	words  []string
	mask   rune
}

// New builds a censor from words, keeping their order. Empty words are
// skipped.
func New(teamID uuid.UUID, words []string, mask rune) *Censor {
	if mask == 0 {
		mask = DefaultMask
	}
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			kept = append(kept, w)
		}
	}
	return &Censor{teamID: teamID, words: kept, mask: mask}
}

// Load reads the team's words once. A team without any word gets a censor
// that passes everything through.
func Load(ctx context.Context, src WordSource, teamID uuid.UUID, mask rune) (*Censor, error) {
	words, err := src.ForbiddenWords(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("load forbidden words for team %s: %w", teamID, err)
	}
	return New(teamID, words, mask), nil
}

func (c *Censor) TeamID() uuid.UUID { return c.teamID }

// Len is the number of active forbidden words.
func (c *Censor) Len() int { return len(c.words) }

// Apply returns the content to surface for m. Only TEXT content is masked.
func (c *Censor) Apply(m model.Message) string {
	if m.ContentType != model.ContentText {
		return m.Content
	}
	return c.Mask(m.Content)
}

// Mask replaces every occurrence of each word, in order, with a run of mask
// characters of the same rune length. Each word is matched against the
// output of the previous replacements, so overlapping words depend on order.
func (c *Censor) Mask(content string) string {
	for _, w := range c.words {
		if !strings.Contains(content, w) {
			continue
		}
		content = strings.ReplaceAll(content, w, strings.Repeat(string(c.mask), utf8.RuneCountInString(w)))
	}
	return content
}
