package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/creditsettle/internal/repos/accounts"
	"github.com/google/uuid"
)

// DecreaseCredits subtracts amount only when the balance covers it and
// returns the new balance. A missing row reads as insufficient credits;
// callers that care check Exists first.
func (r *accountsRepo) DecreaseCredits(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount int64) (int64, error) {
	var credits int64

	err := tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET credits    = credits - $2,
		    updated_at = now()
		WHERE id = $1
		  AND credits >= $2
		RETURNING credits
	`, id, amount).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, accounts.ErrInsufficientCredits
		}

		return 0, fmt.Errorf("decrease credits: %w", err)
	}

	return credits, nil
}
