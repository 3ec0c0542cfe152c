package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fastprodman/creditsettle/internal/events"
	"github.com/fastprodman/creditsettle/internal/infra/retry"
	"github.com/fastprodman/creditsettle/internal/metrics"
	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/fastprodman/creditsettle/internal/repos/transactions"
	"github.com/fastprodman/creditsettle/internal/services/ledger"
	"github.com/google/uuid"
)

type Session struct {
	id       uuid.UUID
	checkout payments.Checkout
	adapter  payments.Adapter
	ledger   Ledger
	pub      events.Publisher
	cfg      Config
	log      *slog.Logger

	signals chan payments.Outcome
	done    chan struct{}
	cancel  context.CancelFunc

	mu   sync.Mutex
	snap Snapshot
}

func newSession(c payments.Checkout, adapter payments.Adapter, l Ledger, pub events.Publisher, cfg Config, log *slog.Logger) *Session {
	id := uuid.New()
	return &Session{
		id:       id,
		checkout: c,
		adapter:  adapter,
		ledger:   l,
		pub:      pub,
		cfg:      cfg,
		log:      log.With("session_id", id, "account_id", c.AccountID, "provider", adapter.Provider()),
		signals:  make(chan payments.Outcome, 8),
		done:     make(chan struct{}),
		snap: Snapshot{
			ID:        id,
			Provider:  adapter.Provider(),
			AccountID: c.AccountID,
			Plan:      c.Plan.Name,
			State:     StateIdle,
			CreatedAt: time.Now().UTC(),
		},
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

// Done is closed when the event loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snap
}

// Deliver normalizes an in-page provider message and hands it to the event
// loop. A message that cannot be understood is rejected without reaching it.
func (s *Session) Deliver(ctx context.Context, raw []byte) (payments.Outcome, error) {
	o := s.adapter.NormalizeClientSignal(raw)
	if o.Status == payments.StatusMalformed {
		s.log.Warn("client signal ignored", "reason", o.Reason)
		return o, fmt.Errorf("%w: %s", ErrInvalidSignal, o.Reason)
	}

	if s.Snapshot().State.Terminal() {
		return o, ErrSessionFinished
	}

	select {
	case s.signals <- o:
		return o, nil
	case <-s.done:
		return o, ErrSessionFinished
	case <-ctx.Done():
		return o, ctx.Err()
	}
}

// Close records that the buyer closed the payment UI. The session keeps
// listening until it reaches a terminal state or the watchdog fires.
func (s *Session) Close() {
	s.mu.Lock()
	s.snap.UIClosed = true
	s.mu.Unlock()

	s.log.Info("payment UI closed, still listening")
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()

	s.setState(StateAwaitingProvider)

	watchdog := time.NewTimer(s.cfg.Watchdog)
	defer watchdog.Stop()

	var (
		ticker   *time.Ticker
		poll     <-chan time.Time
		failures int
	)
	stopPolling := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, poll = nil, nil
		}
	}
	defer stopPolling()

	startPolling := func() {
		if ticker == nil && s.reference() != "" && s.cfg.PollInterval > 0 {
			ticker = time.NewTicker(s.cfg.PollInterval)
			poll = ticker.C
			failures = 0
		}
	}

	for {
		select {
		case o := <-s.signals:
			if s.handle(ctx, o) {
				return
			}
			if o.Status == payments.StatusPending || s.awaitingConfirmation() {
				startPolling()
			}

		case <-poll:
			o, err := s.adapter.CheckStatus(ctx, s.reference())
			if err != nil {
				if errors.Is(err, payments.ErrProviderUnavailable) {
					failures++
					if failures >= s.cfg.PollFailures {
						s.log.Warn("provider unreachable, polling stopped", "failures", failures)
						stopPolling()
					}
					continue
				}
				s.log.Debug("status poll", "error", err)
				continue
			}
			failures = 0
			if s.handle(ctx, o) {
				return
			}

		case <-watchdog.C:
			s.finish(StateTimeout, "", msgTimeout)
			s.log.Info("checkout timed out")
			return

		case <-ctx.Done():
			s.log.Info("checkout loop stopped", "error", ctx.Err())
			return
		}
	}
}

// handle applies one outcome and reports whether the session is finished.
func (s *Session) handle(ctx context.Context, o payments.Outcome) bool {
	if o.Reference != "" {
		if ref := s.reference(); ref != "" && ref != o.Reference {
			s.log.Warn("signal for another reference ignored", "reference", ref, "got", o.Reference)
			return false
		}
		s.setReference(o.Reference)
	}

	switch o.Status {
	case payments.StatusFailed:
		s.finish(StateFailed, "", msgFailed)
		s.log.Info("payment failed", "reference", o.Reference, "reason", o.Reason)
		return true

	case payments.StatusSuccess:
		if s.reference() == "" {
			s.log.Warn("success signal without reference ignored")
			return false
		}
		return s.settle(ctx)

	default:
		return false
	}
}

// settle runs after a plausible success and reports whether the session is
// finished. It never trusts the client's amounts: grants are built from the
// server-side checkout. A payment the provider has not confirmed yet puts the
// session back to AWAITING_PROVIDER so polling can pick it up.
func (s *Session) settle(ctx context.Context) bool {
	ref := s.reference()
	log := s.log.With("reference", ref)

	if !sleep(ctx, s.cfg.GraceDelay) {
		s.finish(StateSuccess, ResolutionPending, msgPending)
		return true
	}

	rec, found, err := s.ledger.FindSettlement(ctx, s.checkout.AccountID, s.adapter.Provider(), ref)
	if err != nil {
		log.Warn("settlement lookup failed, applying through the guard", "error", err)
	}
	if found {
		log.Info("payment already settled, re-syncing")
		s.resync(ctx, events.KindResynced, rec, ResolutionResynced, msgResynced)
		return true
	}

	if s.cfg.VerifyBeforeApply {
		state, resolution, msg := s.verify(ctx, ref)
		if resolution == ResolutionUnconfirmed {
			s.await(msg)
			log.Info("payment not confirmed by provider yet, polling")
			return false
		}
		if state != StateSuccess {
			s.finish(state, resolution, msg)
			log.Info("payment rejected by provider check", "state", state, "reason", msg)
			return true
		}
	}

	g := ledger.GrantFromCheckout(s.adapter.Provider(), s.checkout, ref)
	err = retry.Do(ctx, s.cfg.Apply, ledger.IsPermanent, func(ctx context.Context) error {
		var gerr error
		rec, gerr = s.ledger.GrantCredits(ctx, g)
		return gerr
	})

	switch {
	case err == nil:
		log.Info("credits granted from client signal", "transaction_id", rec.ID, "credits", rec.CreditsGranted)
		s.resync(ctx, events.KindSettled, rec, ResolutionApplied, msgApplied)
	case errors.Is(err, ledger.ErrAlreadyApplied):
		log.Info("grant already applied by another writer")
		s.resync(ctx, events.KindResynced, rec, ResolutionResynced, msgResynced)
	case errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, ledger.ErrInvalidGrant):
		log.Error("grant rejected", "error", err)
		s.finish(StateFailed, "", err.Error())
	default:
		log.Error("grant failed after retries, leaving it to the webhook", "error", err)
		s.finish(StateSuccess, ResolutionPending, msgPending)
	}
	return true
}

// verify asks the provider for the payment status and checks it against the
// checkout. A SUCCESS with an empty resolution means go ahead.
func (s *Session) verify(ctx context.Context, ref string) (State, Resolution, string) {
	var o payments.Outcome
	err := retry.Do(ctx, s.cfg.Apply, func(err error) bool {
		return !errors.Is(err, payments.ErrProviderUnavailable)
	}, func(ctx context.Context) error {
		var cerr error
		o, cerr = s.adapter.CheckStatus(ctx, ref)
		return cerr
	})
	if err != nil {
		s.log.Warn("status check failed", "error", err, "reference", ref)
		return StateSuccess, ResolutionUnconfirmed, msgUnconfirmed
	}

	switch o.Status {
	case payments.StatusSuccess:
	case payments.StatusFailed:
		return StateFailed, "", msgFailed
	default:
		return StateSuccess, ResolutionUnconfirmed, msgUnconfirmed
	}

	// A success without an amount proves nothing yet.
	if o.AmountMinor <= 0 {
		return StateSuccess, ResolutionUnconfirmed, msgUnconfirmed
	}
	if err := s.checkout.Plan.CoveredBy(o.AmountMinor, o.Currency); err != nil {
		return StateFailed, "", err.Error()
	}
	if o.Metadata.AccountID != uuid.Nil && o.Metadata.AccountID != s.checkout.AccountID {
		return StateFailed, "", "payment belongs to another account"
	}

	return StateSuccess, "", ""
}

// resync publishes the change and reads the authoritative account back.
func (s *Session) resync(ctx context.Context, kind events.Kind, rec transactions.Record, res Resolution, msg string) {
	ev := events.Settlement{
		Kind:           kind,
		TransactionID:  rec.ID.String(),
		UserID:         s.checkout.AccountID.String(),
		UserEmail:      s.checkout.Email,
		CoinsPurchased: rec.CreditsGranted,
		Provider:       string(s.adapter.Provider()),
		ProductID:      rec.PlanName,
		Reference:      rec.ProviderReference,
		OccurredAt:     time.Now().UTC(),
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Error("publish settlement", "error", err)
	}

	s.mu.Lock()
	if rec.ID != uuid.Nil {
		r := rec
		s.snap.Transaction = &r
	}
	s.mu.Unlock()

	acc, err := s.ledger.GetAccount(ctx, s.checkout.AccountID)
	if err != nil {
		s.log.Warn("read back account", "error", err)
	} else {
		s.mu.Lock()
		credits, pro := acc.Credits, acc.IsPro
		s.snap.Credits, s.snap.IsPro = &credits, &pro
		s.mu.Unlock()
	}

	s.finish(StateSuccess, res, msg)
}

func (s *Session) finish(state State, res Resolution, msg string) {
	now := time.Now().UTC()

	s.mu.Lock()
	s.snap.State = state
	s.snap.Resolution = res
	s.snap.Message = msg
	s.snap.FinishedAt = &now
	s.mu.Unlock()

	label := strings.ToLower(string(state))
	if res != "" {
		label = string(res)
	}
	metrics.CheckoutSessions.WithLabelValues(string(s.adapter.Provider()), label).Inc()
}

// await returns the session to AWAITING_PROVIDER after an unconfirmed
// success.
func (s *Session) await(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.State = StateAwaitingProvider
	s.snap.Resolution = ResolutionUnconfirmed
	s.snap.Message = msg
}

func (s *Session) awaitingConfirmation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snap.State == StateAwaitingProvider && s.snap.Resolution == ResolutionUnconfirmed
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.State = state
}

func (s *Session) reference() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snap.Reference
}

func (s *Session) setReference(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Reference = ref
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
