// Package card adapts Stripe PaymentIntents for card payments.
package card

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const SignatureHeader = "Stripe-Signature"

const (
	metaAccountID = "account_id"
	metaCredits   = "credits"
	metaPlanName  = "plan_name"
)

type Config struct {
	SecretKey string
	// BaseURL points the API client at a mock server; empty means Stripe.
	BaseURL    string
	HTTPClient *http.Client
}

type intentsAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type Adapter struct {
	intents intentsAPI
}

var _ payments.Adapter = (*Adapter)(nil)

func New(cfg Config) *Adapter {
	var backends *stripe.Backends
	if cfg.BaseURL != "" || cfg.HTTPClient != nil {
		bc := &stripe.BackendConfig{HTTPClient: cfg.HTTPClient}
		if cfg.BaseURL != "" {
			bc.URL = stripe.String(cfg.BaseURL)
		}
		backends = &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, bc),
			Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, bc),
			Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, bc),
		}
	}

	sc := &client.API{}
	sc.Init(cfg.SecretKey, backends)

	return &Adapter{intents: sc.PaymentIntents}
}

func (a *Adapter) Provider() payments.Provider { return payments.Card }

func (a *Adapter) SignatureHeader() string { return SignatureHeader }

func (a *Adapter) VerifySignature(raw []byte, header http.Header, secret string) bool {
	sig := header.Get(SignatureHeader)
	if secret == "" || sig == "" {
		return false
	}
	return webhook.ValidatePayload(raw, sig, secret) == nil
}

// Initiate creates the PaymentIntent. With a payment method attached it is
// confirmed immediately and the returned status may already be final.
func (a *Adapter) Initiate(ctx context.Context, c payments.Checkout) (payments.Initiation, error) {
	err := c.Validate()
	if err != nil {
		return payments.Initiation{}, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(c.Plan.AmountMinor),
		Currency:    stripe.String(strings.ToLower(c.Plan.Currency)),
		Description: stripe.String(c.Plan.Name),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx

	if c.Email != "" {
		params.ReceiptEmail = stripe.String(c.Email)
	}
	if c.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(c.PaymentMethodID)
		params.Confirm = stripe.Bool(true)
	}
	if c.IdempotencyKey != "" {
		params.SetIdempotencyKey(c.IdempotencyKey)
	}

	params.AddMetadata(metaAccountID, c.AccountID.String())
	params.AddMetadata(metaCredits, strconv.FormatInt(c.Plan.Credits, 10))
	params.AddMetadata(metaPlanName, c.Plan.Name)

	pi, err := a.intents.New(params)
	if err != nil {
		return payments.Initiation{}, fmt.Errorf("create payment intent: %w", mapError(err))
	}

	return payments.Initiation{
		Provider:    payments.Card,
		Reference:   pi.ID,
		Status:      intentStatus(pi),
		ClientToken: pi.ClientSecret,
		AmountMinor: pi.Amount,
		Currency:    strings.ToUpper(string(pi.Currency)),
	}, nil
}

func (a *Adapter) CheckStatus(ctx context.Context, reference string) (payments.Outcome, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := a.intents.Get(reference, params)
	if err != nil {
		return payments.Outcome{}, fmt.Errorf("get payment intent: %w", mapError(err))
	}

	out := fromIntent(pi)
	out.EventType = "status"

	return out, nil
}

// NormalizeNotification reads a Stripe event carrying a PaymentIntent.
func (a *Adapter) NormalizeNotification(raw []byte) payments.Outcome {
	var ev stripe.Event
	err := json.Unmarshal(raw, &ev)
	if err != nil {
		return payments.Malformed(payments.Card, "invalid event JSON: %v", err)
	}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return payments.Malformed(payments.Card, "event has no data object")
	}
	if kind, _ := ev.Data.Object["object"].(string); kind != "payment_intent" {
		return payments.Malformed(payments.Card, "unsupported event %q for object %q", ev.Type, kind)
	}

	var pi stripe.PaymentIntent
	err = json.Unmarshal(ev.Data.Raw, &pi)
	if err != nil {
		return payments.Malformed(payments.Card, "invalid payment intent: %v", err)
	}
	if pi.ID == "" {
		return payments.Malformed(payments.Card, "payment intent without id")
	}

	out := fromIntent(&pi)
	out.EventType = string(ev.Type)

	switch out.EventType {
	case "payment_intent.succeeded":
		out.Status = payments.StatusSuccess
	case "payment_intent.payment_failed", "payment_intent.canceled":
		out.Status = payments.StatusFailed
	}

	if out.Status == payments.StatusSuccess && out.Metadata.AccountID == uuid.Nil {
		return payments.Malformed(payments.Card, "payment intent %s has no %s metadata", pi.ID, metaAccountID)
	}

	return out
}

func (a *Adapter) NormalizeClientSignal(raw []byte) payments.Outcome {
	return payments.ParseClientSignal(payments.Card, raw)
}

func fromIntent(pi *stripe.PaymentIntent) payments.Outcome {
	out := payments.Outcome{
		Provider:    payments.Card,
		Reference:   pi.ID,
		Status:      intentStatus(pi),
		AmountMinor: pi.Amount,
		Currency:    strings.ToUpper(string(pi.Currency)),
	}

	md, err := payments.MetadataFromFields(payments.StringFields(pi.Metadata))
	if err == nil {
		out.Metadata = md
	} else {
		out.Reason = err.Error()
	}

	return out
}

func intentStatus(pi *stripe.PaymentIntent) payments.Status {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return payments.StatusSuccess
	case stripe.PaymentIntentStatusCanceled:
		return payments.StatusFailed
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return payments.StatusFailed
		}
		return payments.StatusPending
	default:
		return payments.StatusPending
	}
}

func mapError(err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return fmt.Errorf("%w: %v", payments.ErrProviderUnavailable, err)
	}

	switch {
	case serr.Type == stripe.ErrorTypeCard:
		return fmt.Errorf("%w: %s", payments.ErrPaymentDeclined, serr.Msg)
	case serr.HTTPStatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", payments.ErrUnknownReference, serr.Msg)
	case serr.HTTPStatusCode == http.StatusTooManyRequests || serr.HTTPStatusCode >= 500:
		return fmt.Errorf("%w: %s", payments.ErrProviderUnavailable, serr.Msg)
	default:
		return err
	}
}
