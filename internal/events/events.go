// Package events carries "ledger data changed" notifications from the writers
// (webhook receiver, checkout sessions, media) to readers such as the account
// projection and the downstream notification service.
package events

import (
	"context"
	"errors"
	"time"
)

type Kind string

const (
	// KindSettled is a new grant. Only these leave the process.
	KindSettled Kind = "settled"
	// KindResynced means a writer found the grant already applied.
	KindResynced Kind = "resynced"
	KindConsumed Kind = "consumed"
)

// Settlement is serialized as the message of the successful-payments topic.
type Settlement struct {
	Kind           Kind      `json:"kind"`
	TransactionID  string    `json:"transaction_id"`
	UserID         string    `json:"user_id"`
	UserEmail      string    `json:"user_email,omitempty"`
	CoinsPurchased int64     `json:"coins_purchased"`
	Provider       string    `json:"provider"`
	ProductID      string    `json:"product_id"`
	Reference      string    `json:"provider_reference"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Settlement) error
}

// Multi publishes to every sink and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Settlement) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Settlement) error { return nil }
