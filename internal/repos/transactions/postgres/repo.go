package transactions

import (
	"database/sql"

	"github.com/fastprodman/creditsettle/internal/repos/transactions"
)

var _ transactions.Transactions = (*transactionsRepo)(nil)

type transactionsRepo struct{ db *sql.DB }

func New(db *sql.DB) *transactionsRepo {
	return &transactionsRepo{db: db}
}

const recordColumns = `id, account_id, amount_minor, currency, credits_granted,
	plan_name, provider, provider_reference, status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (transactions.Record, error) {
	var rec transactions.Record
	err := row.Scan(
		&rec.ID, &rec.AccountID, &rec.AmountMinor, &rec.Currency, &rec.CreditsGranted,
		&rec.PlanName, &rec.Provider, &rec.ProviderReference, &rec.Status, &rec.CreatedAt,
	)
	return rec, err
}
