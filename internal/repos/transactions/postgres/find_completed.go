package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/creditsettle/internal/repos/transactions"
	"github.com/google/uuid"
)

func (r *transactionsRepo) FindCompleted(
	ctx context.Context,
	q transactions.Querier,
	accountID uuid.UUID,
	provider, reference string,
) (transactions.Record, error) {
	if q == nil {
		q = r.db
	}

	row := q.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM transactions
		WHERE account_id = $1
		  AND provider = $2
		  AND provider_reference = $3
		  AND status = 'completed'
	`, accountID, provider, reference)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transactions.Record{}, transactions.ErrNotFound
		}

		return transactions.Record{}, fmt.Errorf("find completed transaction: %w", err)
	}

	return rec, nil
}
