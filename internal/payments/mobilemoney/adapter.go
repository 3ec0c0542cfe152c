// Package mobilemoney adapts the KkiaPay mobile-money widget and API.
package mobilemoney

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	SignatureHeader = "x-kkiapay-secret"

	SandboxBaseURL = "https://api-sandbox.kkiapay.me"
	LiveBaseURL    = "https://api.kkiapay.me"

	eventSuccess = "transaction.success"
	eventFailed  = "transaction.failed"

	currency = "XOF"
)

type Config struct {
	PublicKey  string
	SecretKey  string
	BaseURL    string
	Sandbox    bool
	HTTPClient *http.Client
}

type Adapter struct {
	cfg     Config
	baseURL string
	client  *http.Client
}

var _ payments.Adapter = (*Adapter)(nil)

func New(cfg Config) *Adapter {
	base := cfg.BaseURL
	if base == "" {
		base = LiveBaseURL
		if cfg.Sandbox {
			base = SandboxBaseURL
		}
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return &Adapter{cfg: cfg, baseURL: strings.TrimRight(base, "/"), client: client}
}

func (a *Adapter) Provider() payments.Provider { return payments.MobileMoney }

func (a *Adapter) SignatureHeader() string { return SignatureHeader }

// VerifySignature checks the shared secret the provider sends in a header.
func (a *Adapter) VerifySignature(_ []byte, header http.Header, secret string) bool {
	got := header.Get(SignatureHeader)
	if secret == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}

// NormalizeNotification reads a webhook body. A success must carry a userId
// in stateData; other statuses are reported even when stateData is unusable.
func (a *Adapter) NormalizeNotification(raw []byte) payments.Outcome {
	fields, err := payments.DecodeObject(raw)
	if err != nil {
		return payments.Malformed(payments.MobileMoney, "invalid JSON body: %v", err)
	}

	out := payments.Outcome{
		Provider:  payments.MobileMoney,
		Reference: payments.StringField(fields, "transactionId", "transaction_id"),
		EventType: payments.StringField(fields, "event"),
		Currency:  currency,
	}
	if out.Reference == "" {
		return payments.Malformed(payments.MobileMoney, "missing transactionId")
	}

	amount, err := parseAmount(fields["amount"])
	if err != nil {
		return payments.Malformed(payments.MobileMoney, "%v", err)
	}
	out.AmountMinor = amount

	out.Status = notificationStatus(fields, out.EventType)

	md, mdErr := stateMetadata(fields["stateData"])
	if out.Status != payments.StatusSuccess {
		if mdErr == nil {
			out.Metadata = md
		}
		return out
	}

	if mdErr != nil {
		return payments.Malformed(payments.MobileMoney, "invalid stateData: %v", mdErr)
	}
	if md.AccountID == uuid.Nil {
		return payments.Malformed(payments.MobileMoney, "missing userId in stateData")
	}
	out.Metadata = md

	return out
}

func (a *Adapter) NormalizeClientSignal(raw []byte) payments.Outcome {
	out := payments.ParseClientSignal(payments.MobileMoney, raw)
	if out.Status != payments.StatusMalformed {
		out.Currency = currency
	}
	return out
}

func notificationStatus(fields map[string]any, event string) payments.Status {
	flag, hasFlag := successFlag(fields)

	switch {
	case hasFlag && flag && event == eventSuccess:
		return payments.StatusSuccess
	case event == eventFailed || (hasFlag && !flag):
		return payments.StatusFailed
	default:
		return payments.StatusPending
	}
}

// successFlag accepts the provider's historical spelling as well as the
// corrected one.
func successFlag(fields map[string]any) (bool, bool) {
	for _, k := range []string{"isPaymentSucces", "isPaymentSuccess"} {
		if b, ok := fields[k].(bool); ok {
			return b, true
		}
	}
	return false, false
}

func stateMetadata(v any) (payments.Metadata, error) {
	var fields map[string]any

	switch t := v.(type) {
	case nil:
		fields = map[string]any{}
	case string:
		decoded, err := payments.DecodeObject([]byte(t))
		if err != nil {
			return payments.Metadata{}, err
		}
		fields = decoded
	case map[string]any:
		fields = t
	default:
		return payments.Metadata{}, fmt.Errorf("unexpected stateData type %T", v)
	}

	return payments.MetadataFromFields(fields)
}

// parseAmount converts an XOF amount. XOF has no minor unit, so the value
// must be whole.
func parseAmount(v any) (int64, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return 0, fmt.Errorf("amount has unexpected type %T", v)
	}

	if s == "" {
		return 0, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if d.IsNegative() || !d.IsInteger() {
		return 0, fmt.Errorf("amount %q is not a whole non-negative XOF value", s)
	}

	return d.IntPart(), nil
}

type createRequest struct {
	Amount  int64  `json:"amount"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Data    string `json:"data"`
	Sandbox bool   `json:"sandbox"`
}

// Initiate prepares the widget. With a secret key configured the transaction
// is also registered through the REST API so its reference is known up front.
func (a *Adapter) Initiate(ctx context.Context, c payments.Checkout) (payments.Initiation, error) {
	err := c.Validate()
	if err != nil {
		return payments.Initiation{}, err
	}

	data, err := encodeStateData(c)
	if err != nil {
		return payments.Initiation{}, err
	}

	out := payments.Initiation{
		Provider:    payments.MobileMoney,
		Status:      payments.StatusPending,
		PublicKey:   a.cfg.PublicKey,
		AmountMinor: c.Plan.AmountMinor,
		Currency:    currency,
		Sandbox:     a.cfg.Sandbox,
		Widget: map[string]any{
			"amount":  c.Plan.AmountMinor,
			"key":     a.cfg.PublicKey,
			"sandbox": a.cfg.Sandbox,
			"data":    data,
			"email":   c.Email,
			"name":    c.Name,
		},
	}

	if a.cfg.SecretKey == "" {
		return out, nil
	}

	body, err := json.Marshal(createRequest{
		Amount:  c.Plan.AmountMinor,
		Email:   c.Email,
		Name:    c.Name,
		Data:    data,
		Sandbox: a.cfg.Sandbox,
	})
	if err != nil {
		return payments.Initiation{}, fmt.Errorf("encode create request: %w", err)
	}

	fields, err := a.do(ctx, http.MethodPost, "/api/v1/transactions", body)
	if err != nil {
		return payments.Initiation{}, fmt.Errorf("create transaction: %w", err)
	}

	out.Reference = payments.StringField(fields, "transactionId", "transaction_id", "id")
	out.Widget["transactionId"] = out.Reference

	return out, nil
}

// CheckStatus asks the provider for the current state of a transaction.
func (a *Adapter) CheckStatus(ctx context.Context, reference string) (payments.Outcome, error) {
	fields, err := a.do(ctx, http.MethodGet, "/api/v1/transactions/"+reference, nil)
	if err != nil {
		return payments.Outcome{}, fmt.Errorf("check status: %w", err)
	}

	out := payments.Outcome{
		Provider:  payments.MobileMoney,
		Reference: reference,
		Currency:  currency,
		EventType: "status",
	}

	switch strings.ToUpper(payments.StringField(fields, "status", "state")) {
	case "SUCCESS", "SUCCEEDED", "COMPLETED":
		out.Status = payments.StatusSuccess
	case "FAILED", "CANCELLED", "CANCELED", "EXPIRED":
		out.Status = payments.StatusFailed
	default:
		out.Status = payments.StatusPending
	}

	if amount, err := parseAmount(fields["amount"]); err == nil {
		out.AmountMinor = amount
	}

	if md, err := stateMetadata(fields["stateData"]); err == nil {
		out.Metadata = md
	}

	return out, nil
}

func (a *Adapter) do(ctx context.Context, method, path string, body []byte) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	key := a.cfg.SecretKey
	if key == "" {
		key = a.cfg.PublicKey
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payments.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", payments.ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, payments.ErrUnknownReference
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", payments.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("provider rejected request: status %d: %s", resp.StatusCode, snippet(payload))
	}

	fields, err := payments.DecodeObject(payload)
	if err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}

	return fields, nil
}

func encodeStateData(c payments.Checkout) (string, error) {
	kind := "credits"
	if c.Plan.Subscription {
		kind = "pro_plan"
	}

	b, err := json.Marshal(map[string]any{
		"type":     kind,
		"credits":  c.Plan.Credits,
		"userId":   c.AccountID.String(),
		"planName": c.Plan.Name,
	})
	if err != nil {
		return "", fmt.Errorf("encode state data: %w", err)
	}
	return string(b), nil
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
