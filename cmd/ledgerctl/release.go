package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/fastprodman/creditsettle/internal/repos/webhookevents"
	"github.com/fastprodman/creditsettle/internal/services/webhook"
	"github.com/google/uuid"
)

var (
	errNotQuarantined   = errors.New("event is not an open quarantine")
	errStillQuarantined = errors.New("still quarantined")
)

type releaseInbox interface {
	Get(ctx context.Context, id int64) (webhookevents.Event, error)
	ListOpen(ctx context.Context, outcome webhookevents.Outcome, olderThan time.Time, limit int) ([]webhookevents.Event, error)
	Resolve(ctx context.Context, id int64, outcome webhookevents.Outcome, detail string) error
}

type settler interface {
	Settle(ctx context.Context, o payments.Outcome, payload []byte, verified bool) webhook.Response
}

// releaseEvent re-parses a quarantined notification and settles it through
// the same guard as live webhooks. accountOverride moves the grant to another
// account when the original one was never created.
func releaseEvent(
	ctx context.Context,
	inbox releaseInbox,
	adapters payments.Registry,
	s settler,
	id int64,
	accountOverride uuid.UUID,
) (webhook.Response, error) {
	ev, err := inbox.Get(ctx, id)
	if err != nil {
		return webhook.Response{}, err
	}
	if ev.Outcome != webhookevents.OutcomeQuarantined || ev.ResolvedAt != nil {
		return webhook.Response{}, fmt.Errorf("event %d (%s): %w", id, ev.Outcome, errNotQuarantined)
	}

	adapter, err := adapters.Get(payments.Provider(ev.Provider))
	if err != nil {
		return webhook.Response{}, err
	}

	o := adapter.NormalizeNotification(ev.Payload)
	if o.Status != payments.StatusSuccess {
		return webhook.Response{}, fmt.Errorf("event %d no longer parses as a success: %s", id, o.Reason)
	}
	if accountOverride != uuid.Nil {
		o.Metadata.AccountID = accountOverride
	}

	resp := s.Settle(ctx, o, ev.Payload, ev.SignatureVerified)
	switch resp.State {
	case webhook.StateSettled, webhook.StateDuplicate:
	case webhook.StateQuarantined:
		return resp, fmt.Errorf("event %d for account %s: %w (%s)", id, o.Metadata.AccountID, errStillQuarantined, resp.Message)
	default:
		return resp, fmt.Errorf("event %d: settle: %s", id, resp.Message)
	}

	detail := fmt.Sprintf("released to %s (%s)", o.Metadata.AccountID, resp.Message)
	if err := inbox.Resolve(ctx, id, webhookevents.OutcomeReleased, detail); err != nil {
		return resp, fmt.Errorf("event %d settled but not marked released: %w", id, err)
	}

	return resp, nil
}
