package accounts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/creditsettle/internal/repos/accounts"
	"github.com/google/uuid"
)

func (r *accountsRepo) Exists(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	var exists bool

	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check account exists: %w", err)
	}

	if !exists {
		return accounts.ErrAccountNotFound
	}

	return nil
}
