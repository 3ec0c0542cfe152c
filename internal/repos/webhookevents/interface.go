package webhookevents

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("webhook event not found")
	ErrAlreadyResolved = errors.New("webhook event already resolved")
)

type Outcome string

const (
	OutcomeSettled     Outcome = "settled"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeNotSettled  Outcome = "not_settled"
	OutcomePending     Outcome = "pending"
	OutcomeMalformed   Outcome = "malformed"
	OutcomeQuarantined Outcome = "quarantined"
	OutcomeReleased    Outcome = "released"
	OutcomeFailed      Outcome = "failed"
)

// Open reports whether an event with this outcome still needs attention.
func (o Outcome) Open() bool {
	return o == OutcomePending || o == OutcomeQuarantined
}

// Event is one authenticated provider notification as it was received.
type Event struct {
	ID                int64      `json:"id"`
	Provider          string     `json:"provider"`
	ProviderReference string     `json:"providerReference"`
	EventType         string     `json:"eventType"`
	Payload           []byte     `json:"-"`
	SignatureVerified bool       `json:"signatureVerified"`
	Outcome           Outcome    `json:"outcome"`
	AccountID         *uuid.UUID `json:"accountId,omitempty"`
	Detail            string     `json:"detail"`
	CreatedAt         time.Time  `json:"createdAt"`
	ResolvedAt        *time.Time `json:"resolvedAt,omitempty"`
}

type Inbox interface {
	Insert(ctx context.Context, ev Event) (int64, error)
	Get(ctx context.Context, id int64) (Event, error)
	ListOpen(ctx context.Context, outcome Outcome, olderThan time.Time, limit int) ([]Event, error)
	Resolve(ctx context.Context, id int64, outcome Outcome, detail string) error
}
