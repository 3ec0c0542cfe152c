// Package checkout follows one buyer checkout from initiation to a settled,
// failed or timed-out payment. Each Session runs its own event loop that
// merges in-page provider signals, status polling and a watchdog, and
// converges with the webhook receiver on a single ledger grant.
package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/fastprodman/creditsettle/internal/config"
	"github.com/fastprodman/creditsettle/internal/infra/retry"
	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/fastprodman/creditsettle/internal/repos/accounts"
	"github.com/fastprodman/creditsettle/internal/repos/transactions"
	"github.com/fastprodman/creditsettle/internal/services/ledger"
	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrSessionFinished = errors.New("checkout session already finished")
	ErrInvalidSignal   = errors.New("invalid provider signal")
)

type Ledger interface {
	GrantCredits(ctx context.Context, g ledger.Grant) (transactions.Record, error)
	FindSettlement(ctx context.Context, accountID uuid.UUID, p payments.Provider, reference string) (transactions.Record, bool, error)
	GetAccount(ctx context.Context, id uuid.UUID) (accounts.Account, error)
}

type State string

const (
	StateIdle             State = "IDLE"
	StateAwaitingProvider State = "AWAITING_PROVIDER"
	StateSuccess          State = "SUCCESS"
	StateFailed           State = "FAILED"
	StateTimeout          State = "TIMEOUT"
)

func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed || s == StateTimeout
}

// Resolution says what a SUCCESS session did to the ledger.
type Resolution string

const (
	// ResolutionApplied means this session wrote the grant.
	ResolutionApplied Resolution = "applied"
	// ResolutionResynced means the grant was already there.
	ResolutionResynced Resolution = "resynced"
	// ResolutionPending means the store could not be reached; the webhook or
	// the sweep job will settle it.
	ResolutionPending Resolution = "pending"
	// ResolutionUnconfirmed means the provider has not confirmed the payment
	// yet.
	ResolutionUnconfirmed Resolution = "unconfirmed"
)

const (
	msgApplied     = "payment confirmed, credits added"
	msgResynced    = "payment already confirmed"
	msgPending     = "payment pending, will be confirmed shortly"
	msgUnconfirmed = "payment received, awaiting provider confirmation"
	msgFailed      = "payment failed"
	msgTimeout     = "no answer from the payment provider"
)

type Config struct {
	// GraceDelay lets a concurrent webhook land before the session looks.
	GraceDelay   time.Duration
	PollInterval time.Duration
	Watchdog     time.Duration
	// VerifyBeforeApply asks the provider to confirm a client-reported
	// success before any credits are granted.
	VerifyBeforeApply bool
	Apply             retry.Policy
	// PollFailures bounds consecutive unavailable-provider poll errors.
	PollFailures int
	// SessionTTL is how long a finished session stays queryable.
	SessionTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		GraceDelay:        2 * time.Second,
		PollInterval:      5 * time.Second,
		Watchdog:          5 * time.Minute,
		VerifyBeforeApply: true,
		Apply:             retry.Default,
		PollFailures:      5,
		SessionTTL:        30 * time.Minute,
	}
}

func ConfigFrom(c config.CheckoutConfig) Config {
	cfg := DefaultConfig()
	cfg.GraceDelay = c.GraceDelay
	cfg.PollInterval = c.PollInterval
	cfg.Watchdog = c.Watchdog
	cfg.VerifyBeforeApply = c.VerifyBeforeApply
	cfg.SessionTTL = c.SessionTTL
	if c.ApplyAttempts > 0 {
		cfg.Apply.Attempts = c.ApplyAttempts
	}
	return cfg
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	ID          uuid.UUID            `json:"sessionId"`
	Provider    payments.Provider    `json:"provider"`
	AccountID   uuid.UUID            `json:"accountId"`
	Plan        string               `json:"plan"`
	State       State                `json:"state"`
	Resolution  Resolution           `json:"resolution,omitempty"`
	Reference   string               `json:"reference,omitempty"`
	Message     string               `json:"message,omitempty"`
	Credits     *int64               `json:"credits,omitempty"`
	IsPro       *bool                `json:"isPro,omitempty"`
	Transaction *transactions.Record `json:"transaction,omitempty"`
	UIClosed    bool                 `json:"uiClosed"`
	CreatedAt   time.Time            `json:"createdAt"`
	FinishedAt  *time.Time           `json:"finishedAt,omitempty"`
}
