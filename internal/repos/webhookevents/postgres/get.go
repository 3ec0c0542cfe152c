package webhookevents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/creditsettle/internal/repos/webhookevents"
)

func (r *inboxRepo) Get(ctx context.Context, id int64) (webhookevents.Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM webhook_events
		WHERE id = $1
	`, id)

	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return webhookevents.Event{}, webhookevents.ErrNotFound
		}

		return webhookevents.Event{}, fmt.Errorf("get webhook event: %w", err)
	}

	return ev, nil
}
