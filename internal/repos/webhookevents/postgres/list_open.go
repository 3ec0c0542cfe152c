package webhookevents

import (
	"context"
	"fmt"
	"time"

	"github.com/fastprodman/creditsettle/internal/repos/webhookevents"
)

// ListOpen returns unresolved events with the given outcome received before
// olderThan, oldest first.
func (r *inboxRepo) ListOpen(ctx context.Context, outcome webhookevents.Outcome, olderThan time.Time, limit int) ([]webhookevents.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM webhook_events
		WHERE outcome = $1
		  AND resolved_at IS NULL
		  AND created_at < $2
		ORDER BY created_at, id
		LIMIT $3
	`, outcome, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list open webhook events: %w", err)
	}
	defer rows.Close()

	var out []webhookevents.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook events: %w", err)
	}

	return out, nil
}
