package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fastprodman/creditsettle/internal/infra/logging"
	"github.com/fastprodman/creditsettle/internal/infra/pgutils"
	"github.com/fastprodman/creditsettle/internal/metrics"
	"github.com/fastprodman/creditsettle/internal/repos/accounts"
	pgaccounts "github.com/fastprodman/creditsettle/internal/repos/accounts/postgres"
	"github.com/fastprodman/creditsettle/internal/repos/transactions"
	pgtransactions "github.com/fastprodman/creditsettle/internal/repos/transactions/postgres"
	"github.com/google/uuid"
)

type Service struct {
	db       *sql.DB
	accounts accounts.Accounts
	txns     transactions.Transactions
	log      *slog.Logger
}

func New(db *sql.DB) *Service {
	return &Service{
		db:       db,
		accounts: pgaccounts.New(db),
		txns:     pgtransactions.New(db),
		log:      logging.Component("ledger"),
	}
}

// GrantCredits applies a settled payment exactly once, in a single DB
// transaction:
//
// 1) Ensure the account exists.
// 2) Lock the account row (FOR UPDATE); concurrent grants queue here.
// 3) Look for a completed record with the same reference; if there is one,
// return it with ErrAlreadyApplied.
// 4) Insert the completed record (unique index as the backstop).
// 5) Add the credits, marking the account pro for subscription plans.
func (s *Service) GrantCredits(ctx context.Context, g Grant) (transactions.Record, error) {
	err := g.Validate()
	if err != nil {
		metrics.Grants.WithLabelValues(string(g.Provider), "invalid").Inc()
		return transactions.Record{}, err
	}

	var (
		rec     transactions.Record
		applied bool
	)

	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		// 1) Ensure account exists
		err := s.accounts.Exists(ctx, tx, g.AccountID)
		if err != nil {
			return fmt.Errorf("check account exists: %w", err)
		}

		// 2) Lock account row
		_, err = s.accounts.LockAndGetCredits(ctx, tx, g.AccountID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		// 3) Idempotency guard
		existing, err := s.txns.FindCompleted(ctx, tx, g.AccountID, string(g.Provider), g.Reference)
		switch {
		case err == nil:
			rec, applied = existing, true
			return nil
		case !errors.Is(err, transactions.ErrNotFound):
			return fmt.Errorf("find completed: %w", err)
		}

		// 4) Insert record
		rec, err = s.txns.Insert(ctx, tx, transactions.Record{
			AccountID:         g.AccountID,
			AmountMinor:       g.AmountMinor,
			Currency:          g.Currency,
			CreditsGranted:    g.Credits,
			PlanName:          g.PlanName,
			Provider:          string(g.Provider),
			ProviderReference: g.Reference,
			Status:            transactions.StatusCompleted,
		})
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		// 5) Apply credits
		err = s.accounts.IncreaseCredits(ctx, tx, g.AccountID, g.Credits, g.Subscription)
		if err != nil {
			return fmt.Errorf("increase credits: %w", err)
		}

		return nil
	})

	log := s.log.With("account_id", g.AccountID, "provider", g.Provider, "reference", g.Reference)

	switch {
	case err == nil && applied:
		metrics.Grants.WithLabelValues(string(g.Provider), "duplicate").Inc()
		log.Info("grant already applied", "transaction_id", rec.ID)
		return rec, ErrAlreadyApplied

	case err == nil:
		metrics.Grants.WithLabelValues(string(g.Provider), "applied").Inc()
		metrics.CreditsGranted.WithLabelValues(string(g.Provider)).Add(float64(g.Credits))
		log.Info("credits granted", "transaction_id", rec.ID, "credits", g.Credits, "subscription", g.Subscription)
		return rec, nil

	case errors.Is(err, transactions.ErrDuplicateTransaction):
		// Lost a race past the lock; the winner's record is committed.
		metrics.Grants.WithLabelValues(string(g.Provider), "duplicate").Inc()
		existing, ferr := s.txns.FindCompleted(ctx, s.db, g.AccountID, string(g.Provider), g.Reference)
		if ferr != nil {
			return transactions.Record{}, fmt.Errorf("grant credits: %w", ErrAlreadyApplied)
		}
		return existing, ErrAlreadyApplied

	case errors.Is(err, ErrAccountNotFound):
		metrics.Grants.WithLabelValues(string(g.Provider), "unknown_account").Inc()
		log.Warn("grant for unknown account")
		return transactions.Record{}, fmt.Errorf("grant credits: %w", err)

	default:
		metrics.Grants.WithLabelValues(string(g.Provider), "error").Inc()
		log.Error("grant failed", "error", err)
		return transactions.Record{}, fmt.Errorf("grant credits: %w", err)
	}
}

// ConsumeCredit spends one credit and records what it was spent on.
func (s *Service) ConsumeCredit(ctx context.Context, accountID uuid.UUID, purpose string) (int64, error) {
	var balance int64

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := s.accounts.Exists(ctx, tx, accountID)
		if err != nil {
			return fmt.Errorf("check account exists: %w", err)
		}

		balance, err = s.accounts.DecreaseCredits(ctx, tx, accountID, 1)
		if err != nil {
			return fmt.Errorf("decrease credits: %w", err)
		}

		err = s.accounts.RecordUsage(ctx, tx, accountID, purpose)
		if err != nil {
			return fmt.Errorf("record usage: %w", err)
		}

		return nil
	})
	if err != nil {
		result := "error"
		switch {
		case errors.Is(err, ErrInsufficientCredits):
			result = "insufficient"
		case errors.Is(err, ErrAccountNotFound):
			result = "unknown_account"
		}
		metrics.Consumptions.WithLabelValues(result).Inc()

		return 0, fmt.Errorf("consume credit: %w", err)
	}

	metrics.Consumptions.WithLabelValues("ok").Inc()

	return balance, nil
}

// GetAccount returns the account without locking it.
func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (accounts.Account, error) {
	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("get account: %w", err)
	}

	return acc, nil
}

// EnsureAccount creates the account on first sight with the initial balance.
func (s *Service) EnsureAccount(ctx context.Context, accountID uuid.UUID, email string) (accounts.Account, error) {
	acc, err := s.accounts.Create(ctx, accountID, email)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("ensure account: %w", err)
	}

	return acc, nil
}

// ListTransactions returns one page of the account's log, newest first.
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, page transactions.Page) ([]transactions.Record, error) {
	_, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	recs, err := s.txns.ListByAccount(ctx, accountID, page)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	return recs, nil
}
