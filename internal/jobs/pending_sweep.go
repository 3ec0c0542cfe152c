package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/creditsettle/internal/infra/logging"
	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/fastprodman/creditsettle/internal/repos/webhookevents"
	"github.com/fastprodman/creditsettle/internal/services/webhook"
	"github.com/google/uuid"
)

type Inbox interface {
	ListOpen(ctx context.Context, outcome webhookevents.Outcome, olderThan time.Time, limit int) ([]webhookevents.Event, error)
	Resolve(ctx context.Context, id int64, outcome webhookevents.Outcome, detail string) error
}

type Settler interface {
	Settle(ctx context.Context, o payments.Outcome, payload []byte, verified bool) webhook.Response
}

// SweepStats counts what one sweep did.
type SweepStats struct {
	Checked int
	Settled int
	Failed  int
	Left    int
}

// PendingSweep re-checks notifications that arrived while the payment was
// still pending and settles them through the webhook settle path.
type PendingSweep struct {
	inbox    Inbox
	adapters payments.Registry
	settler  Settler
	minAge   time.Duration
	batch    int
	now      func() time.Time
	log      *slog.Logger
}

func NewPendingSweep(inbox Inbox, adapters payments.Registry, settler Settler, minAge time.Duration, batch int) *PendingSweep {
	return &PendingSweep{
		inbox:    inbox,
		adapters: adapters,
		settler:  settler,
		minAge:   minAge,
		batch:    batch,
		now:      time.Now,
		log:      logging.Component("pending-sweep"),
	}
}

// Job adapts the sweep to the scheduler.
func (j *PendingSweep) Job(ctx context.Context) error {
	stats, err := j.Run(ctx)
	if stats.Checked > 0 {
		j.log.Info("pending sweep",
			"checked", stats.Checked, "settled", stats.Settled, "failed", stats.Failed, "left", stats.Left)
	}
	return err
}

func (j *PendingSweep) Run(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	evs, err := j.inbox.ListOpen(ctx, webhookevents.OutcomePending, j.now().Add(-j.minAge), j.batch)
	if err != nil {
		return stats, fmt.Errorf("list pending events: %w", err)
	}

	for _, ev := range evs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++

		switch j.sweepOne(ctx, ev) {
		case webhookevents.OutcomeSettled, webhookevents.OutcomeDuplicate:
			stats.Settled++
		case webhookevents.OutcomeFailed:
			stats.Failed++
		default:
			stats.Left++
		}
	}

	return stats, nil
}

// sweepOne returns the outcome the event was resolved with, or
// OutcomePending when it stays open.
func (j *PendingSweep) sweepOne(ctx context.Context, ev webhookevents.Event) webhookevents.Outcome {
	log := j.log.With("event_id", ev.ID, "provider", ev.Provider, "reference", ev.ProviderReference)

	adapter, err := j.adapters.Get(payments.Provider(ev.Provider))
	if err != nil {
		log.Warn("no adapter for pending event")
		return webhookevents.OutcomePending
	}

	status, err := adapter.CheckStatus(ctx, ev.ProviderReference)
	if err != nil {
		if !errors.Is(err, payments.ErrProviderUnavailable) && !errors.Is(err, payments.ErrUnknownReference) {
			log.Warn("status check failed", "error", err)
		}
		return webhookevents.OutcomePending
	}

	switch status.Status {
	case payments.StatusFailed:
		return j.resolve(ctx, log, ev.ID, webhookevents.OutcomeFailed, "provider reports payment failed")
	case payments.StatusSuccess:
	default:
		return webhookevents.OutcomePending
	}

	// Status lookups do not always echo the metadata; fall back to what the
	// notification carried.
	if status.Metadata.AccountID == uuid.Nil {
		stored := adapter.NormalizeNotification(ev.Payload)
		status.Metadata = stored.Metadata
		if status.AmountMinor == 0 {
			status.AmountMinor = stored.AmountMinor
		}
	}

	if status.AmountMinor <= 0 {
		log.Info("provider reports success without an amount, left open")
		return webhookevents.OutcomePending
	}

	resp := j.settler.Settle(ctx, status, ev.Payload, ev.SignatureVerified)
	switch resp.State {
	case webhook.StateSettled:
		return j.resolve(ctx, log, ev.ID, webhookevents.OutcomeSettled, fmt.Sprintf("settled as event %d", resp.EventID))
	case webhook.StateDuplicate:
		return j.resolve(ctx, log, ev.ID, webhookevents.OutcomeDuplicate, "already settled")
	case webhook.StateQuarantined:
		return j.resolve(ctx, log, ev.ID, webhookevents.OutcomeFailed, fmt.Sprintf("quarantined as event %d", resp.EventID))
	case webhook.StateMalformed:
		return j.resolve(ctx, log, ev.ID, webhookevents.OutcomeFailed, resp.Message)
	default:
		log.Warn("settle deferred", "state", resp.State, "message", resp.Message)
		return webhookevents.OutcomePending
	}
}

func (j *PendingSweep) resolve(ctx context.Context, log *slog.Logger, id int64, o webhookevents.Outcome, detail string) webhookevents.Outcome {
	if err := j.inbox.Resolve(ctx, id, o, detail); err != nil && !errors.Is(err, webhookevents.ErrAlreadyResolved) {
		log.Error("resolve pending event", "error", err, "outcome", o)
		return webhookevents.OutcomePending
	}
	log.Info("pending event resolved", "outcome", o)
	return o
}
