package accounts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/creditsettle/internal/repos/accounts"
	"github.com/google/uuid"
)

func (r *accountsRepo) IncreaseCredits(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount int64, markPro bool) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET credits    = credits + $2,
		    is_pro     = is_pro OR $3,
		    updated_at = now()
		WHERE id = $1
	`, id, amount, markPro)
	if err != nil {
		return fmt.Errorf("increase credits: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return accounts.ErrAccountNotFound
	}

	return nil
}
