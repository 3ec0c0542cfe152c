package card

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
)

var testAccount = uuid.MustParse("9a4f6c1e-2b3d-4e5f-8a9b-0c1d2e3f4a5b")

type fakeIntents struct {
	newParams *stripe.PaymentIntentParams
	newResult *stripe.PaymentIntent
	newErr    error
	get       map[string]*stripe.PaymentIntent
	getErr    error
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.newParams = params
	return f.newResult, f.newErr
}

func (f *fakeIntents) Get(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	pi, ok := f.get[id]
	if !ok {
		return nil, &stripe.Error{HTTPStatusCode: http.StatusNotFound, Msg: "No such payment_intent"}
	}
	return pi, nil
}

func sign(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func event(typ, status string, metadata string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": %q,
		"data": {"object": {
			"id": "pi_123",
			"object": "payment_intent",
			"amount": 5000,
			"currency": "xof",
			"status": %q,
			"metadata": %s
		}}
	}`, typ, status, metadata))
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	a := &Adapter{}
	payload := event("payment_intent.succeeded", "succeeded", `{}`)
	const secret = "whsec_test"

	tests := []struct {
		name   string
		header string
		secret string
		want   bool
	}{
		{name: "valid", header: sign(payload, secret, time.Now()), secret: secret, want: true},
		{name: "wrong_secret", header: sign(payload, "whsec_other", time.Now()), secret: secret},
		{name: "stale_timestamp", header: sign(payload, secret, time.Now().Add(-time.Hour)), secret: secret},
		{name: "garbage_header", header: "t=1,v1=deadbeef", secret: secret},
		{name: "missing_header", secret: secret},
		{name: "no_secret", header: sign(payload, secret, time.Now())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := http.Header{}
			if tt.header != "" {
				h.Set(SignatureHeader, tt.header)
			}
			if got := a.VerifySignature(payload, h, tt.secret); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("tampered_body", func(t *testing.T) {
		t.Parallel()

		h := http.Header{}
		h.Set(SignatureHeader, sign(payload, secret, time.Now()))
		tampered := event("payment_intent.succeeded", "succeeded", `{"credits":"5000"}`)
		if a.VerifySignature(tampered, h, secret) {
			t.Fatal("signature must not verify a different body")
		}
	})
}

func TestNormalizeNotification(t *testing.T) {
	t.Parallel()

	a := &Adapter{}
	md := `{"account_id":"` + testAccount.String() + `","credits":"50","plan_name":"Mode Pro"}`

	tests := []struct {
		name       string
		body       []byte
		wantStatus payments.Status
	}{
		{name: "succeeded", body: event("payment_intent.succeeded", "succeeded", md), wantStatus: payments.StatusSuccess},
		{name: "payment_failed", body: event("payment_intent.payment_failed", "requires_payment_method", md), wantStatus: payments.StatusFailed},
		{name: "canceled", body: event("payment_intent.canceled", "canceled", md), wantStatus: payments.StatusFailed},
		{name: "processing", body: event("payment_intent.processing", "processing", md), wantStatus: payments.StatusPending},
		{name: "succeeded_without_account", body: event("payment_intent.succeeded", "succeeded", `{}`), wantStatus: payments.StatusMalformed},
		{name: "charge_event", body: []byte(`{"type":"charge.succeeded","data":{"object":{"id":"ch_1","object":"charge"}}}`), wantStatus: payments.StatusMalformed},
		{name: "no_data", body: []byte(`{"type":"payment_intent.succeeded"}`), wantStatus: payments.StatusMalformed},
		{name: "not_json", body: []byte(`nope`), wantStatus: payments.StatusMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := a.NormalizeNotification(tt.body)
			if got.Status != tt.wantStatus {
				t.Fatalf("status: got %s (%s), want %s", got.Status, got.Reason, tt.wantStatus)
			}
			if got.Status == payments.StatusMalformed {
				return
			}
			if got.Reference != "pi_123" || got.AmountMinor != 5000 || got.Currency != "XOF" {
				t.Fatalf("outcome: %+v", got)
			}
			if got.Metadata.AccountID != testAccount || got.Metadata.Credits != 50 || !got.Metadata.Subscription {
				t.Fatalf("metadata: %+v", got.Metadata)
			}
		})
	}
}

func TestInitiate(t *testing.T) {
	t.Parallel()

	checkout := payments.Checkout{
		AccountID:       testAccount,
		Email:           "buyer@example.com",
		Plan:            payments.ProPlan,
		PaymentMethodID: "pm_card_visa",
		IdempotencyKey:  "session-1",
	}

	t.Run("confirmed_immediately", func(t *testing.T) {
		t.Parallel()

		fake := &fakeIntents{newResult: &stripe.PaymentIntent{
			ID: "pi_new", ClientSecret: "pi_new_secret", Amount: 5000, Currency: "xof",
			Status: stripe.PaymentIntentStatusSucceeded,
		}}
		a := &Adapter{intents: fake}

		got, err := a.Initiate(context.Background(), checkout)
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		if got.Reference != "pi_new" || got.Status != payments.StatusSuccess || got.ClientToken != "pi_new_secret" {
			t.Fatalf("initiation: %+v", got)
		}

		p := fake.newParams
		if *p.Amount != 5000 || *p.Currency != "xof" || !*p.Confirm || *p.ReceiptEmail != "buyer@example.com" {
			t.Fatalf("params: amount=%d currency=%s", *p.Amount, *p.Currency)
		}
		if p.Metadata[metaAccountID] != testAccount.String() || p.Metadata[metaCredits] != "50" {
			t.Fatalf("metadata: %v", p.Metadata)
		}
		if p.IdempotencyKey == nil || *p.IdempotencyKey != "session-1" {
			t.Fatal("idempotency key not set")
		}
	})

	t.Run("card_declined", func(t *testing.T) {
		t.Parallel()

		a := &Adapter{intents: &fakeIntents{newErr: &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined."}}}
		_, err := a.Initiate(context.Background(), checkout)
		if !errors.Is(err, payments.ErrPaymentDeclined) {
			t.Fatalf("got %v, want ErrPaymentDeclined", err)
		}
	})

	t.Run("provider_down", func(t *testing.T) {
		t.Parallel()

		a := &Adapter{intents: &fakeIntents{newErr: &stripe.Error{HTTPStatusCode: http.StatusServiceUnavailable}}}
		_, err := a.Initiate(context.Background(), checkout)
		if !errors.Is(err, payments.ErrProviderUnavailable) {
			t.Fatalf("got %v, want ErrProviderUnavailable", err)
		}
	})
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	fake := &fakeIntents{get: map[string]*stripe.PaymentIntent{
		"pi_ok":     {ID: "pi_ok", Status: stripe.PaymentIntentStatusSucceeded, Amount: 5000, Currency: "xof"},
		"pi_retry":  {ID: "pi_retry", Status: stripe.PaymentIntentStatusRequiresPaymentMethod},
		"pi_failed": {ID: "pi_failed", Status: stripe.PaymentIntentStatusRequiresPaymentMethod, LastPaymentError: &stripe.Error{Msg: "declined"}},
	}}
	a := &Adapter{intents: fake}
	ctx := context.Background()

	tests := map[string]payments.Status{
		"pi_ok":     payments.StatusSuccess,
		"pi_retry":  payments.StatusPending,
		"pi_failed": payments.StatusFailed,
	}
	for ref, want := range tests {
		got, err := a.CheckStatus(ctx, ref)
		if err != nil || got.Status != want {
			t.Fatalf("%s: got %+v, %v; want %s", ref, got, err, want)
		}
	}

	_, err := a.CheckStatus(ctx, "pi_missing")
	if !errors.Is(err, payments.ErrUnknownReference) {
		t.Fatalf("missing: got %v, want ErrUnknownReference", err)
	}
}
