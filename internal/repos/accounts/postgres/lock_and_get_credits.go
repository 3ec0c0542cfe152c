package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/creditsettle/internal/repos/accounts"
	"github.com/google/uuid"
)

// LockAndGetCredits takes the row lock that serializes every balance change
// of one account for the rest of tx.
func (r *accountsRepo) LockAndGetCredits(ctx context.Context, tx *sql.Tx, id uuid.UUID) (int64, error) {
	var credits int64

	err := tx.QueryRowContext(ctx, `
		SELECT credits
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, accounts.ErrAccountNotFound
		}

		return 0, fmt.Errorf("lock/get credits: %w", err)
	}

	return credits, nil
}
