package accounts

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// InitialCredits is the balance a newly created account starts with.
const InitialCredits int64 = 6

type Account struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Credits   int64     `json:"credits"`
	IsPro     bool      `json:"isPro"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Accounts is the balance side of the ledger. Methods taking a *sql.Tx must be
// called inside a transaction that the caller owns.
type Accounts interface {
	Create(ctx context.Context, id uuid.UUID, email string) (Account, error)
	Get(ctx context.Context, id uuid.UUID) (Account, error)
	Exists(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
	LockAndGetCredits(ctx context.Context, tx *sql.Tx, id uuid.UUID) (int64, error)
	IncreaseCredits(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount int64, markPro bool) error
	DecreaseCredits(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount int64) (int64, error)
	RecordUsage(ctx context.Context, tx *sql.Tx, id uuid.UUID, purpose string) error
}
