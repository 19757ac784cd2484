package chat

import (
	"errors"
	"fmt"
)

// Validation errors. They are returned before anything is written.
var (
	ErrInvalidDestination   = errors.New("cannot send a message to yourself")
	ErrDestinationNotFound  = errors.New("destination not found")
	ErrNotInTeam            = errors.New("destination belongs to another team")
	ErrForbidden            = errors.New("not allowed to post to this channel")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidContentType   = errors.New("unknown content type")
	ErrInvalidOffset        = errors.New("offset must not be negative")
)

// Delivery errors, matched through *DeliveryError.
var (
	ErrDeliveryFailed      = errors.New("delivery failed")
	ErrDestinationVanished = errors.New("destination removed during delivery")
)

// errDestinationGone aborts a send transaction whose destination row is no
// longer there.
var errDestinationGone = errors.New("destination row missing")

// DeliveryError reports a send that was rolled back. It always matches
// ErrDeliveryFailed, and also ErrDestinationVanished when a re-read after the
// rollback confirmed the destination is gone.
type DeliveryError struct {
	Vanished bool
	Err      error
}

func (e *DeliveryError) Error() string {
	if e.Vanished {
		return fmt.Sprintf("%s: %s: %v", ErrDeliveryFailed, ErrDestinationVanished, e.Err)
	}
	return fmt.Sprintf("%s: %v", ErrDeliveryFailed, e.Err)
}

func (e *DeliveryError) Is(target error) bool {
	switch target {
	case ErrDeliveryFailed:
		return true
	case ErrDestinationVanished:
		return e.Vanished
	}
	return false
}

func (e *DeliveryError) Unwrap() error { return e.Err }
