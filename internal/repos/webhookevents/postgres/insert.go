package webhookevents

import (
	"context"
	"fmt"

	"github.com/fastprodman/creditsettle/internal/repos/webhookevents"
)

// Insert stores ev. Events whose outcome needs no follow-up are stored
// already resolved.
func (r *inboxRepo) Insert(ctx context.Context, ev webhookevents.Event) (int64, error) {
	var id int64

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO webhook_events (
			provider, provider_reference, event_type, payload,
			signature_verified, outcome, account_id, detail, resolved_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CASE WHEN $9 THEN NULL ELSE now() END)
		RETURNING id
	`,
		ev.Provider, ev.ProviderReference, ev.EventType, string(ev.Payload),
		ev.SignatureVerified, ev.Outcome, ev.AccountID, ev.Detail, ev.Outcome.Open(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert webhook event: %w", err)
	}

	return id, nil
}
