package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the reminder category. It is opaque to the scheduler and passed
// through to delivery.
type Kind string

const (
	KindSubmission Kind = "submission"
	KindVoting     Kind = "voting"
	KindCombined   Kind = "combined"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindSubmission:
		return KindSubmission, nil
	case KindVoting:
		return KindVoting, nil
	case KindCombined:
		return KindCombined, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrValidation, s)
	}
}

// Payload carries delivery-only data. The scheduler never inspects it.
type Payload struct {
	Label string `json:"label,omitempty"`
	Link  string `json:"link,omitempty"`
}

// Reminder is the sole scheduled entity.
//
// FireAt is set once at creation and is immutable; cancel-and-recreate is the
// only way to move a reminder. A reminder exists in the store iff it has not
// fired and has not been cancelled.
type Reminder struct {
	ID       string    `json:"id"`
	Scope    int64     `json:"scope"`  // owning chat
	Target   int       `json:"target"` // thread/topic inside the chat (0 = main)
	Kind     Kind      `json:"kind"`
	Deadline time.Time `json:"deadline"`
	FireAt   time.Time `json:"fire_at"`
	Payload  Payload   `json:"payload,omitempty"`
}

// DeliverFunc is the delivery callback. Any outcome (including an error) is
// terminal: the scheduler never retries a fire.
type DeliverFunc func(ctx context.Context, r Reminder) error

var (
	// ErrValidation is the base class for rejected registrations.
	ErrValidation = errors.New("invalid reminder")

	ErrFireAtPast     = fmt.Errorf("%w: fire time is not in the future", ErrValidation)
	ErrFireAfterDue   = fmt.Errorf("%w: fire time is after the deadline", ErrValidation)
	ErrNotStarted     = errors.New("registry not started; run Startup first")
	ErrAlreadyStarted = errors.New("registry already started")
	errAlreadyArmed   = errors.New("reminder already armed")
	errNothingToChain = errors.New("fire time already due") // engine-internal past-due signal
)

// NewID returns a short, collision-resistant reminder id (first 8 hex chars
// of a UUID). Short enough to type in a /cancel command.
func NewID() string {
	return uuid.NewString()[:8]
}
