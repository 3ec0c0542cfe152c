package accounts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

func (r *accountsRepo) RecordUsage(ctx context.Context, tx *sql.Tx, id uuid.UUID, purpose string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_usage (account_id, purpose)
		VALUES ($1, $2)
	`, id, purpose)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}

	return nil
}
