package ledger

import (
	"errors"
	"fmt"

	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/fastprodman/creditsettle/internal/repos/accounts"
	"github.com/google/uuid"
)

var (
	ErrAlreadyApplied = errors.New("payment already applied")
	ErrInvalidGrant   = errors.New("invalid grant")

	ErrAccountNotFound     = accounts.ErrAccountNotFound
	ErrInsufficientCredits = accounts.ErrInsufficientCredits
)

// Grant is one settled payment to be turned into credits.
type Grant struct {
	AccountID    uuid.UUID
	Credits      int64
	AmountMinor  int64
	Currency     string
	Provider     payments.Provider
	Reference    string
	PlanName     string
	Subscription bool
}

// Validate checks the preconditions GrantCredits enforces before touching the store.
func (g Grant) Validate() error {
	switch {
	case g.AccountID == uuid.Nil:
		return fmt.Errorf("%w: account id required", ErrInvalidGrant)
	case g.Credits <= 0:
		return fmt.Errorf("%w: credits must be positive, got %d", ErrInvalidGrant, g.Credits)
	case g.AmountMinor < 0:
		return fmt.Errorf("%w: negative amount", ErrInvalidGrant)
	case g.Reference == "":
		return fmt.Errorf("%w: provider reference required", ErrInvalidGrant)
	}

	_, err := payments.ParseProvider(string(g.Provider))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGrant, err)
	}

	return nil
}

// GrantFromOutcome builds the grant for a settled provider outcome. Credits
// and subscription come from the plan the caller priced; only the account,
// reference and paid amount are taken from the provider.
func GrantFromOutcome(o payments.Outcome, plan payments.Plan) Grant {
	currency := o.Currency
	if currency == "" {
		currency = plan.Currency
	}

	return Grant{
		AccountID:    o.Metadata.AccountID,
		Credits:      plan.Credits,
		AmountMinor:  o.AmountMinor,
		Currency:     currency,
		Provider:     o.Provider,
		Reference:    o.Reference,
		PlanName:     plan.Name,
		Subscription: plan.Subscription,
	}
}

// GrantFromCheckout builds the grant from the values the server itself
// priced, ignoring anything the client reported.
func GrantFromCheckout(p payments.Provider, c payments.Checkout, reference string) Grant {
	return Grant{
		AccountID:    c.AccountID,
		Credits:      c.Plan.Credits,
		AmountMinor:  c.Plan.AmountMinor,
		Currency:     c.Plan.Currency,
		Provider:     p,
		Reference:    reference,
		PlanName:     c.Plan.Name,
		Subscription: c.Plan.Subscription,
	}
}

// IsPermanent reports errors that a retry cannot fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrAlreadyApplied) ||
		errors.Is(err, ErrInvalidGrant) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrInsufficientCredits)
}
