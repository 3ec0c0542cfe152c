package transactions

import (
	"context"
	"fmt"
	"time"

	"github.com/fastprodman/creditsettle/internal/repos/transactions"
	"github.com/google/uuid"
)

// ListByAccount returns records newest first. Ties on created_at are broken
// by id so a cursor taken from the last record resumes without gaps.
func (r *transactionsRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, page transactions.Page) ([]transactions.Record, error) {
	var (
		afterAt *time.Time
		afterID *uuid.UUID
	)
	if page.After != nil {
		afterAt = &page.After.CreatedAt
		afterID = &page.After.ID
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM transactions
		WHERE account_id = $1
		  AND ($2::timestamptz IS NULL OR (created_at, id) < ($2::timestamptz, $3::uuid))
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, accountID, afterAt, afterID, page.EffectiveLimit())
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]transactions.Record, 0, page.EffectiveLimit())
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return out, nil
}
