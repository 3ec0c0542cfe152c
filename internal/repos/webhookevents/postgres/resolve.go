package webhookevents

import (
	"context"
	"fmt"

	"github.com/fastprodman/creditsettle/internal/repos/webhookevents"
)

// Resolve closes an open event. Resolving twice returns ErrAlreadyResolved so
// two operators cannot release the same quarantined event.
func (r *inboxRepo) Resolve(ctx context.Context, id int64, outcome webhookevents.Outcome, detail string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET outcome     = $2,
		    detail      = CASE WHEN $3 = '' THEN detail ELSE $3 END,
		    resolved_at = now()
		WHERE id = $1
		  AND resolved_at IS NULL
	`, id, outcome, detail)
	if err != nil {
		return fmt.Errorf("resolve webhook event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 1 {
		return nil
	}

	_, err = r.Get(ctx, id)
	if err != nil {
		return err
	}

	return webhookevents.ErrAlreadyResolved
}
