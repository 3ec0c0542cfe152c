// Package webhook turns authenticated provider notifications into ledger
// grants. Every call ends in a Response whose HTTP status tells the provider
// whether to retry.
package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fastprodman/creditsettle/internal/events"
	"github.com/fastprodman/creditsettle/internal/infra/logging"
	"github.com/fastprodman/creditsettle/internal/metrics"
	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/fastprodman/creditsettle/internal/repos/transactions"
	"github.com/fastprodman/creditsettle/internal/repos/webhookevents"
	"github.com/fastprodman/creditsettle/internal/services/ledger"
	"github.com/google/uuid"
)

type Ledger interface {
	GrantCredits(ctx context.Context, g ledger.Grant) (transactions.Record, error)
}

type Inbox interface {
	Insert(ctx context.Context, ev webhookevents.Event) (int64, error)
}

type State string

const (
	StateRejected    State = "REJECTED"
	StateMalformed   State = "MALFORMED"
	StateNotSettled  State = "NOT_SETTLED"
	StateSettled     State = "SETTLED"
	StateDuplicate   State = "DUPLICATE"
	StateQuarantined State = "QUARANTINED"
	StateUnavailable State = "UNAVAILABLE"
)

const (
	msgNotSettled  = "not settled"
	msgSettled     = "settled"
	msgDuplicate   = "already processed"
	msgQuarantined = "quarantined"
	msgUnavailable = "temporarily unable to settle, retry later"
)

// Notification is one inbound webhook call.
type Notification struct {
	Body   []byte
	Header http.Header
	Query  url.Values
}

// Response is what the provider receives. Body fields are safe to expose.
type Response struct {
	State         State  `json:"-"`
	HTTPStatus    int    `json:"-"`
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	TransactionID string `json:"transactionId,omitempty"`
	EventID       int64  `json:"-"`
}

type Config struct {
	// AccessToken is the platform credential required in front of the
	// handler, sent as a bearer token or ?apikey=.
	AccessToken string
	// Secrets holds the signature secret per provider.
	Secrets map[payments.Provider]string
}

type Receiver struct {
	adapters  payments.Registry
	ledger    Ledger
	inbox     Inbox
	publisher events.Publisher
	cfg       Config
	log       *slog.Logger
}

func NewReceiver(adapters payments.Registry, l Ledger, inbox Inbox, publisher events.Publisher, cfg Config) *Receiver {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &Receiver{
		adapters:  adapters,
		ledger:    l,
		inbox:     inbox,
		publisher: publisher,
		cfg:       cfg,
		log:       logging.Component("webhook"),
	}
}

// Receive authenticates, parses and settles one notification.
func (r *Receiver) Receive(ctx context.Context, provider payments.Provider, n Notification) Response {
	adapter, err := r.adapters.Get(provider)
	if err != nil {
		return r.finish(provider, Response{State: StateRejected, HTTPStatus: http.StatusNotFound, Message: "unknown provider"})
	}

	log := r.log.With("provider", provider)

	verified, rejection := r.authenticate(adapter, n)
	if rejection != nil {
		log.Warn("webhook rejected", "reason", rejection.Message)
		return r.finish(provider, *rejection)
	}

	outcome := adapter.NormalizeNotification(n.Body)
	log = log.With("reference", outcome.Reference, "status", outcome.Status)

	if outcome.Status == payments.StatusMalformed {
		log.Warn("malformed notification", "reason", outcome.Reason)
		id, _ := r.record(ctx, outcome, n.Body, verified, webhookevents.OutcomeMalformed, outcome.Reason)
		return r.finish(provider, Response{
			State:      StateMalformed,
			HTTPStatus: http.StatusBadRequest,
			Message:    "malformed payload: " + outcome.Reason,
			EventID:    id,
		})
	}

	return r.finish(provider, r.Settle(ctx, outcome, n.Body, verified))
}

// Settle applies a parsed outcome and records it in the inbox. The sweep job
// and manual quarantine release reuse it so all paths share one guard.
func (r *Receiver) Settle(ctx context.Context, o payments.Outcome, payload []byte, verified bool) Response {
	log := r.log.With("provider", o.Provider, "reference", o.Reference)

	switch o.Status {
	case payments.StatusSuccess:
	case payments.StatusPending:
		id, err := r.record(ctx, o, payload, verified, webhookevents.OutcomePending, "")
		if err != nil {
			return unavailable(o.Reference)
		}
		log.Info("payment pending, kept for sweep")
		return Response{State: StateNotSettled, HTTPStatus: http.StatusOK, Message: msgNotSettled, TransactionID: o.Reference, EventID: id}
	default:
		id, _ := r.record(ctx, o, payload, verified, webhookevents.OutcomeNotSettled, string(o.Status))
		log.Info("payment not settled")
		return Response{State: StateNotSettled, HTTPStatus: http.StatusOK, Message: msgNotSettled, TransactionID: o.Reference, EventID: id}
	}

	plan, err := pricedPlan(o)
	switch {
	case errors.Is(err, errAmountMissing):
		id, rerr := r.record(ctx, o, payload, verified, webhookevents.OutcomePending, err.Error())
		if rerr != nil {
			return unavailable(o.Reference)
		}
		log.Info("success without paid amount, kept for sweep")
		return Response{State: StateNotSettled, HTTPStatus: http.StatusOK, Message: msgNotSettled, TransactionID: o.Reference, EventID: id}

	case err != nil:
		id, rerr := r.record(ctx, o, payload, verified, webhookevents.OutcomeQuarantined, err.Error())
		if rerr != nil {
			return unavailable(o.Reference)
		}
		log.Warn("payment does not cover its plan, quarantined", "error", err, "event_id", id)
		return Response{State: StateQuarantined, HTTPStatus: http.StatusOK, Message: msgQuarantined + ": " + err.Error(), TransactionID: o.Reference, EventID: id}
	}

	rec, err := r.ledger.GrantCredits(ctx, ledger.GrantFromOutcome(o, plan))
	switch {
	case err == nil:
		id, _ := r.record(ctx, o, payload, verified, webhookevents.OutcomeSettled, rec.ID.String())
		r.publish(ctx, events.KindSettled, o, rec)
		log.Info("payment settled", "transaction_id", rec.ID, "credits", rec.CreditsGranted)
		return Response{State: StateSettled, HTTPStatus: http.StatusOK, Success: true, Message: msgSettled, TransactionID: o.Reference, EventID: id}

	case errors.Is(err, ledger.ErrAlreadyApplied):
		id, _ := r.record(ctx, o, payload, verified, webhookevents.OutcomeDuplicate, rec.ID.String())
		log.Info("payment already processed")
		return Response{State: StateDuplicate, HTTPStatus: http.StatusOK, Success: true, Message: msgDuplicate, TransactionID: o.Reference, EventID: id}

	case errors.Is(err, ledger.ErrAccountNotFound):
		id, rerr := r.record(ctx, o, payload, verified, webhookevents.OutcomeQuarantined, "unknown account "+o.Metadata.AccountID.String())
		if rerr != nil {
			return unavailable(o.Reference)
		}
		log.Warn("payment for unknown account quarantined", "account_id", o.Metadata.AccountID, "event_id", id)
		return Response{State: StateQuarantined, HTTPStatus: http.StatusOK, Message: msgQuarantined, TransactionID: o.Reference, EventID: id}

	case errors.Is(err, ledger.ErrInvalidGrant):
		id, _ := r.record(ctx, o, payload, verified, webhookevents.OutcomeMalformed, err.Error())
		log.Warn("notification cannot become a grant", "error", err)
		return Response{State: StateMalformed, HTTPStatus: http.StatusBadRequest, Message: "malformed payload: " + err.Error(), EventID: id}

	default:
		log.Error("settlement failed, provider will retry", "error", err)
		return unavailable(o.Reference)
	}
}

var errAmountMissing = errors.New("no paid amount reported")

// pricedPlan resolves the plan a notification pays for and checks the amount
// the provider saw against the plan price. Credits always come from the
// catalog, never from the echoed widget data.
func pricedPlan(o payments.Outcome) (payments.Plan, error) {
	plan, ok := payments.PlanByName(o.Metadata.PlanName)
	if !ok {
		return payments.Plan{}, fmt.Errorf("unknown plan %q", o.Metadata.PlanName)
	}
	if o.AmountMinor <= 0 {
		return plan, errAmountMissing
	}
	if err := plan.CoveredBy(o.AmountMinor, o.Currency); err != nil {
		return plan, err
	}
	return plan, nil
}

// authenticate enforces every configured credential. With none configured the
// call goes through unverified and is logged as such.
func (r *Receiver) authenticate(adapter payments.Adapter, n Notification) (bool, *Response) {
	token := r.cfg.AccessToken
	secret := r.cfg.Secrets[adapter.Provider()]

	if token == "" && secret == "" {
		r.log.Warn("webhook accepted without verification: no access token or provider secret configured",
			"provider", adapter.Provider())
		return false, nil
	}

	if token != "" && !hasAccessToken(n, token) {
		return false, &Response{
			State:      StateRejected,
			HTTPStatus: http.StatusUnauthorized,
			Message:    "missing or invalid platform credential: send Authorization: Bearer <access token> or ?apikey=<access token>",
		}
	}

	if secret != "" && !adapter.VerifySignature(n.Body, n.Header, secret) {
		return false, &Response{
			State:      StateRejected,
			HTTPStatus: http.StatusUnauthorized,
			Message:    fmt.Sprintf("missing or invalid provider signature: expected header %s", adapter.SignatureHeader()),
		}
	}

	return secret != "", nil
}

func hasAccessToken(n Notification, token string) bool {
	candidate := n.Query.Get("apikey")

	if auth := n.Header.Get("Authorization"); auth != "" {
		scheme, value, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			candidate = strings.TrimSpace(value)
		}
	}

	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1
}

func (r *Receiver) record(
	ctx context.Context,
	o payments.Outcome,
	payload []byte,
	verified bool,
	outcome webhookevents.Outcome,
	detail string,
) (int64, error) {
	if r.inbox == nil {
		return 0, nil
	}

	ev := webhookevents.Event{
		Provider:          string(o.Provider),
		ProviderReference: o.Reference,
		EventType:         o.EventType,
		Payload:           payload,
		SignatureVerified: verified,
		Outcome:           outcome,
		Detail:            detail,
	}
	if o.Metadata.AccountID != uuid.Nil {
		acc := o.Metadata.AccountID
		ev.AccountID = &acc
	}

	id, err := r.inbox.Insert(ctx, ev)
	if err != nil {
		r.log.Error("record webhook event", "error", err, "provider", o.Provider, "reference", o.Reference, "outcome", outcome)
		return 0, err
	}

	return id, nil
}

func (r *Receiver) publish(ctx context.Context, kind events.Kind, o payments.Outcome, rec transactions.Record) {
	ev := events.Settlement{
		Kind:           kind,
		TransactionID:  rec.ID.String(),
		UserID:         rec.AccountID.String(),
		CoinsPurchased: rec.CreditsGranted,
		Provider:       string(o.Provider),
		ProductID:      rec.PlanName,
		Reference:      o.Reference,
		OccurredAt:     time.Now().UTC(),
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := r.publisher.Publish(pctx, ev); err != nil {
		r.log.Error("publish settlement", "error", err, "transaction_id", rec.ID)
	}
}

func (r *Receiver) finish(p payments.Provider, resp Response) Response {
	metrics.WebhookOutcomes.WithLabelValues(string(p), strings.ToLower(string(resp.State))).Inc()
	return resp
}

func unavailable(reference string) Response {
	return Response{
		State:         StateUnavailable,
		HTTPStatus:    http.StatusServiceUnavailable,
		Message:       msgUnavailable,
		TransactionID: reference,
	}
}
