package transactions

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrNotFound             = errors.New("transaction not found")
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
)

// Record is one append-only entry of the transaction log.
type Record struct {
	ID                uuid.UUID `json:"id"`
	AccountID         uuid.UUID `json:"accountId"`
	AmountMinor       int64     `json:"amountMinor"`
	Currency          string    `json:"currency"`
	CreditsGranted    int64     `json:"creditsGranted"`
	PlanName          string    `json:"planName"`
	Provider          string    `json:"provider"`
	ProviderReference string    `json:"providerReference"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Cursor marks a position in the newest-first listing.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func (r Record) Cursor() Cursor {
	return Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Page selects up to Limit records strictly older than After.
type Page struct {
	Limit int
	After *Cursor
}

// EffectiveLimit returns the page size after defaults and caps.
func (p Page) EffectiveLimit() int {
	switch {
	case p.Limit <= 0:
		return DefaultPageSize
	case p.Limit > MaxPageSize:
		return MaxPageSize
	default:
		return p.Limit
	}
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Transactions interface {
	Insert(ctx context.Context, tx *sql.Tx, rec Record) (Record, error)
	FindCompleted(ctx context.Context, q Querier, accountID uuid.UUID, provider, reference string) (Record, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, page Page) ([]Record, error)
}
