package mobilemoney

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/google/uuid"
)

var testAccount = uuid.MustParse("3b0c8f0e-1f7a-4f5e-9d8a-5b2a1c7e4d10")

func TestNormalizeNotification(t *testing.T) {
	t.Parallel()

	a := New(Config{Sandbox: true})
	state := `{"type":"pro_plan","credits":50,"userId":"` + testAccount.String() + `","planName":"Mode Pro"}`
	stateString, _ := json.Marshal(state)

	tests := []struct {
		name        string
		body        string
		wantStatus  payments.Status
		wantCredits int64
		wantAmount  int64
	}{
		{
			name:        "success_with_object_state",
			body:        `{"transactionId":"tx-123","isPaymentSucces":true,"event":"transaction.success","amount":5000,"method":"MOBILE_MONEY","stateData":` + state + `}`,
			wantStatus:  payments.StatusSuccess,
			wantCredits: 50,
			wantAmount:  5000,
		},
		{
			name:        "success_with_string_state",
			body:        `{"transactionId":"tx-124","isPaymentSucces":true,"event":"transaction.success","amount":"5000","stateData":` + string(stateString) + `}`,
			wantStatus:  payments.StatusSuccess,
			wantCredits: 50,
			wantAmount:  5000,
		},
		{
			name:       "failed_event",
			body:       `{"transactionId":"tx-125","isPaymentSucces":false,"event":"transaction.failed","amount":5000}`,
			wantStatus: payments.StatusFailed,
			wantAmount: 5000,
		},
		{
			name:       "success_event_without_flag_stays_pending",
			body:       `{"transactionId":"tx-126","event":"transaction.success","stateData":` + state + `}`,
			wantStatus: payments.StatusPending,
		},
		{
			name:       "success_without_user",
			body:       `{"transactionId":"tx-127","isPaymentSucces":true,"event":"transaction.success","stateData":{"credits":50}}`,
			wantStatus: payments.StatusMalformed,
		},
		{
			name:       "missing_reference",
			body:       `{"isPaymentSucces":true,"event":"transaction.success"}`,
			wantStatus: payments.StatusMalformed,
		},
		{
			name:       "fractional_amount",
			body:       `{"transactionId":"tx-128","amount":"12.5","event":"transaction.failed"}`,
			wantStatus: payments.StatusMalformed,
		},
		{
			name:       "not_json",
			body:       `transactionId=tx-129`,
			wantStatus: payments.StatusMalformed,
		},
		{
			name:        "unknown_fields_ignored",
			body:        `{"transactionId":"tx-130","isPaymentSucces":true,"event":"transaction.success","partnerId":"p","fees":10,"stateData":` + state + `}`,
			wantStatus:  payments.StatusSuccess,
			wantCredits: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := a.NormalizeNotification([]byte(tt.body))
			if got.Status != tt.wantStatus {
				t.Fatalf("status: got %s (%s), want %s", got.Status, got.Reason, tt.wantStatus)
			}
			if got.Status == payments.StatusMalformed {
				if got.Reason == "" {
					t.Fatal("malformed outcome must carry a reason")
				}
				return
			}
			if got.AmountMinor != tt.wantAmount {
				t.Fatalf("amount: got %d, want %d", got.AmountMinor, tt.wantAmount)
			}
			if tt.wantStatus == payments.StatusSuccess {
				if got.Metadata.AccountID != testAccount || got.Metadata.Credits != tt.wantCredits || !got.Metadata.Subscription {
					t.Fatalf("metadata: got %+v", got.Metadata)
				}
			}
		})
	}
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	a := New(Config{})

	tests := []struct {
		name   string
		header string
		secret string
		want   bool
	}{
		{name: "match", header: "s3cret", secret: "s3cret", want: true},
		{name: "mismatch", header: "guess", secret: "s3cret"},
		{name: "missing_header", secret: "s3cret"},
		{name: "no_secret_configured", header: "anything"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := http.Header{}
			if tt.header != "" {
				h.Set(SignatureHeader, tt.header)
			}
			if got := a.VerifySignature(nil, h, tt.secret); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/v1/transactions/tx-ok":
			_, _ = io.WriteString(w, `{"transactionId":"tx-ok","status":"SUCCESS","amount":5000}`)
		case "/api/v1/transactions/tx-wait":
			_, _ = io.WriteString(w, `{"transactionId":"tx-wait","status":"PENDING"}`)
		case "/api/v1/transactions/tx-down":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := New(Config{SecretKey: "sk_test", BaseURL: srv.URL})
	ctx := context.Background()

	got, err := a.CheckStatus(ctx, "tx-ok")
	if err != nil || got.Status != payments.StatusSuccess || got.AmountMinor != 5000 {
		t.Fatalf("tx-ok: got %+v, %v", got, err)
	}

	got, err = a.CheckStatus(ctx, "tx-wait")
	if err != nil || got.Status != payments.StatusPending {
		t.Fatalf("tx-wait: got %+v, %v", got, err)
	}

	_, err = a.CheckStatus(ctx, "tx-down")
	if !errors.Is(err, payments.ErrProviderUnavailable) {
		t.Fatalf("tx-down: got %v, want ErrProviderUnavailable", err)
	}

	_, err = a.CheckStatus(ctx, "tx-missing")
	if !errors.Is(err, payments.ErrUnknownReference) {
		t.Fatalf("tx-missing: got %v, want ErrUnknownReference", err)
	}
}

func TestInitiate(t *testing.T) {
	t.Parallel()

	var gotBody createRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/transactions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"transactionId":"tx-new"}`)
	}))
	defer srv.Close()

	checkout := payments.Checkout{AccountID: testAccount, Email: "a@b.c", Plan: payments.ProPlan}

	t.Run("widget_only_without_secret", func(t *testing.T) {
		t.Parallel()

		a := New(Config{PublicKey: "pk_test", Sandbox: true})
		got, err := a.Initiate(context.Background(), checkout)
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		if got.Reference != "" || got.PublicKey != "pk_test" || got.AmountMinor != 5000 || !got.Sandbox {
			t.Fatalf("unexpected initiation: %+v", got)
		}

		md, err := stateMetadata(got.Widget["data"])
		if err != nil || md.AccountID != testAccount || md.Credits != 50 {
			t.Fatalf("widget state data must round-trip: %+v, %v", md, err)
		}
	})

	t.Run("registers_with_secret", func(t *testing.T) {
		t.Parallel()

		a := New(Config{PublicKey: "pk_test", SecretKey: "sk_test", BaseURL: srv.URL})
		got, err := a.Initiate(context.Background(), checkout)
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		if got.Reference != "tx-new" {
			t.Fatalf("reference: got %q", got.Reference)
		}
	})

	t.Run("rejects_invalid_checkout", func(t *testing.T) {
		t.Parallel()

		a := New(Config{})
		_, err := a.Initiate(context.Background(), payments.Checkout{Plan: payments.ProPlan})
		if !errors.Is(err, payments.ErrInvalidCheckout) {
			t.Fatalf("got %v, want ErrInvalidCheckout", err)
		}
	})
}

func TestNew_BaseURLBySandbox(t *testing.T) {
	t.Parallel()

	if got := New(Config{Sandbox: true}).baseURL; got != SandboxBaseURL {
		t.Fatalf("sandbox: got %q", got)
	}
	if got := New(Config{}).baseURL; got != LiveBaseURL {
		t.Fatalf("live: got %q", got)
	}
}
