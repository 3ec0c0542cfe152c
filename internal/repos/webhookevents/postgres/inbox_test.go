package webhookevents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fastprodman/creditsettle/internal/infra/pgtestutil"
	"github.com/fastprodman/creditsettle/internal/repos/webhookevents"
	"github.com/google/uuid"
)

func TestInbox_InsertResolvesClosedOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		outcome  webhookevents.Outcome
		wantOpen bool
	}{
		{webhookevents.OutcomeSettled, false},
		{webhookevents.OutcomeDuplicate, false},
		{webhookevents.OutcomeMalformed, false},
		{webhookevents.OutcomePending, true},
		{webhookevents.OutcomeQuarantined, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			repo := New(db)
			ctx := context.Background()
			acc := uuid.New()

			id, err := repo.Insert(ctx, webhookevents.Event{
				Provider:          "mobile_money",
				ProviderReference: "tx-1",
				EventType:         "transaction.success",
				Payload:           []byte(`{"transactionId":"tx-1"}`),
				SignatureVerified: true,
				Outcome:           tt.outcome,
				AccountID:         &acc,
			})
			if err != nil {
				t.Fatalf("insert: %v", err)
			}

			ev, err := repo.Get(ctx, id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if (ev.ResolvedAt == nil) != tt.wantOpen {
				t.Fatalf("resolved_at=%v, want open=%v", ev.ResolvedAt, tt.wantOpen)
			}
			if string(ev.Payload) != `{"transactionId":"tx-1"}` || ev.AccountID == nil || *ev.AccountID != acc {
				t.Fatalf("stored event mismatch: %+v", ev)
			}
		})
	}
}

func TestInbox_ListOpenAndResolve(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := context.Background()

	insert := func(ref string, outcome webhookevents.Outcome) int64 {
		t.Helper()
		id, err := repo.Insert(ctx, webhookevents.Event{
			Provider:          "card",
			ProviderReference: ref,
			Payload:           []byte(`{}`),
			Outcome:           outcome,
		})
		if err != nil {
			t.Fatalf("insert %s: %v", ref, err)
		}
		return id
	}

	first := insert("pi_1", webhookevents.OutcomeQuarantined)
	insert("pi_2", webhookevents.OutcomePending)
	second := insert("pi_3", webhookevents.OutcomeQuarantined)
	insert("pi_4", webhookevents.OutcomeSettled)

	open, err := repo.ListOpen(ctx, webhookevents.OutcomeQuarantined, time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 2 || open[0].ID != first || open[1].ID != second {
		t.Fatalf("unexpected open events: %+v", open)
	}

	none, err := repo.ListOpen(ctx, webhookevents.OutcomeQuarantined, time.Now().Add(-time.Hour), 10)
	if err != nil || len(none) != 0 {
		t.Fatalf("age filter: got %d events, err %v", len(none), err)
	}

	if err := repo.Resolve(ctx, first, webhookevents.OutcomeReleased, "released by ops"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := repo.Resolve(ctx, first, webhookevents.OutcomeReleased, ""); !errors.Is(err, webhookevents.ErrAlreadyResolved) {
		t.Fatalf("second resolve: got %v, want ErrAlreadyResolved", err)
	}
	if err := repo.Resolve(ctx, 999_999, webhookevents.OutcomeReleased, ""); !errors.Is(err, webhookevents.ErrNotFound) {
		t.Fatalf("missing: got %v, want ErrNotFound", err)
	}

	ev, err := repo.Get(ctx, first)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ev.Outcome != webhookevents.OutcomeReleased || ev.Detail != "released by ops" || ev.ResolvedAt == nil {
		t.Fatalf("resolved event mismatch: %+v", ev)
	}
}
