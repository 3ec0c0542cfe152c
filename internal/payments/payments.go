// Package payments holds the provider-neutral view of a payment: what a
// provider told us (Outcome), what the buyer is paying for (Plan, Checkout),
// and the Adapter each provider implements.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

var (
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrUnknownProvider     = errors.New("unknown payment provider")
	ErrUnknownReference    = errors.New("provider does not know this reference")
	ErrPaymentDeclined     = errors.New("payment declined")
	ErrInvalidCheckout     = errors.New("invalid checkout")
)

type Provider string

const (
	MobileMoney Provider = "mobile_money"
	Card        Provider = "card"
)

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(s); p {
	case MobileMoney, Card:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

type Status string

const (
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusPending   Status = "PENDING"
	StatusMalformed Status = "MALFORMED"
)

// Metadata is what we attached to the payment at initiation and the provider
// echoes back.
type Metadata struct {
	AccountID    uuid.UUID
	Credits      int64
	PlanName     string
	Subscription bool
}

// Outcome is a provider message normalized to one shape. A message that could
// not be understood is an Outcome with StatusMalformed and a Reason.
type Outcome struct {
	Provider    Provider
	Reference   string
	Status      Status
	AmountMinor int64
	Currency    string
	EventType   string
	Reason      string
	Metadata    Metadata
}

func Malformed(p Provider, format string, args ...any) Outcome {
	return Outcome{Provider: p, Status: StatusMalformed, Reason: fmt.Sprintf(format, args...)}
}

// Checkout is a buyer's request to pay for a plan.
type Checkout struct {
	AccountID       uuid.UUID
	Email           string
	Name            string
	Plan            Plan
	PaymentMethodID string
	IdempotencyKey  string
}

func (c Checkout) Validate() error {
	if c.AccountID == uuid.Nil {
		return fmt.Errorf("%w: account id required", ErrInvalidCheckout)
	}
	if c.Plan.Credits <= 0 || c.Plan.AmountMinor <= 0 {
		return fmt.Errorf("%w: plan %q has no price or credits", ErrInvalidCheckout, c.Plan.Name)
	}
	return nil
}

func (c Checkout) Metadata() Metadata {
	return Metadata{
		AccountID:    c.AccountID,
		Credits:      c.Plan.Credits,
		PlanName:     c.Plan.Name,
		Subscription: c.Plan.Subscription,
	}
}

// Initiation is what the buyer UI needs to open the provider widget.
// Reference is empty when the provider assigns it inside the widget.
type Initiation struct {
	Provider    Provider       `json:"provider"`
	Reference   string         `json:"reference,omitempty"`
	Status      Status         `json:"status"`
	ClientToken string         `json:"clientToken,omitempty"`
	PublicKey   string         `json:"publicKey,omitempty"`
	AmountMinor int64          `json:"amount"`
	Currency    string         `json:"currency"`
	Sandbox     bool           `json:"sandbox"`
	Widget      map[string]any `json:"widget,omitempty"`
}

type Adapter interface {
	Provider() Provider
	// SignatureHeader names the header VerifySignature reads.
	SignatureHeader() string
	Initiate(ctx context.Context, c Checkout) (Initiation, error)
	NormalizeNotification(raw []byte) Outcome
	NormalizeClientSignal(raw []byte) Outcome
	VerifySignature(raw []byte, header http.Header, secret string) bool
	CheckStatus(ctx context.Context, reference string) (Outcome, error)
}

// Registry resolves adapters by provider.
type Registry map[Provider]Adapter

func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.Provider()] = a
	}
	return r
}

func (r Registry) Get(p Provider) (Adapter, error) {
	a, ok := r[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}
	return a, nil
}
