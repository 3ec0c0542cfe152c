package transactions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/creditsettle/internal/infra/pgutils"
	"github.com/fastprodman/creditsettle/internal/repos/transactions"
)

// Insert appends rec and returns it with the store-assigned id and timestamp.
// A second completed record for the same reference is a unique violation.
func (r *transactionsRepo) Insert(ctx context.Context, tx *sql.Tx, rec transactions.Record) (transactions.Record, error) {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO transactions (
			account_id, amount_minor, currency, credits_granted,
			plan_name, provider, provider_reference, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+recordColumns,
		rec.AccountID, rec.AmountMinor, rec.Currency, rec.CreditsGranted,
		rec.PlanName, rec.Provider, rec.ProviderReference, rec.Status,
	)

	stored, err := scanRecord(row)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return transactions.Record{}, transactions.ErrDuplicateTransaction
		}

		return transactions.Record{}, fmt.Errorf("insert transaction: %w", err)
	}

	return stored, nil
}
