package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/fastprodman/creditsettle/internal/repos/transactions"
	"github.com/google/uuid"
)

// FindSettlement reports whether a completed record exists for the
// reference. It takes no lock; GrantCredits re-checks under the row lock.
func (s *Service) FindSettlement(
	ctx context.Context,
	accountID uuid.UUID,
	provider payments.Provider,
	reference string,
) (transactions.Record, bool, error) {
	rec, err := s.txns.FindCompleted(ctx, s.db, accountID, string(provider), reference)
	switch {
	case err == nil:
		return rec, true, nil
	case errors.Is(err, transactions.ErrNotFound):
		return transactions.Record{}, false, nil
	default:
		return transactions.Record{}, false, fmt.Errorf("find settlement: %w", err)
	}
}
