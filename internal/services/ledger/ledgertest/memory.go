// Package ledgertest provides an in-memory ledger with the same idempotency
// and balance rules as the Postgres-backed service, for service-level tests.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/fastprodman/creditsettle/internal/repos/accounts"
	"github.com/fastprodman/creditsettle/internal/repos/transactions"
	"github.com/fastprodman/creditsettle/internal/services/ledger"
	"github.com/google/uuid"
)

// ErrStore simulates an unavailable store.
var ErrStore = errors.New("ledgertest: store unavailable")

type Memory struct {
	mu         sync.Mutex
	accounts   map[uuid.UUID]accounts.Account
	records    []transactions.Record
	usage      map[uuid.UUID][]string
	failGrants int
	grantCalls int
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		accounts: map[uuid.UUID]accounts.Account{},
		usage:    map[uuid.UUID][]string{},
		now:      time.Now,
	}
}

func (m *Memory) AddAccount(credits int64, isPro bool) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New()
	now := m.now()
	m.accounts[id] = accounts.Account{ID: id, Credits: credits, IsPro: isPro, CreatedAt: now, UpdatedAt: now}

	return id
}

// FailNextGrants makes the next n GrantCredits calls fail with ErrStore.
func (m *Memory) FailNextGrants(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failGrants = n
}

func (m *Memory) GrantCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.grantCalls
}

func (m *Memory) GrantCredits(_ context.Context, g ledger.Grant) (transactions.Record, error) {
	if err := g.Validate(); err != nil {
		return transactions.Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.grantCalls++
	if m.failGrants > 0 {
		m.failGrants--
		return transactions.Record{}, fmt.Errorf("grant credits: %w", ErrStore)
	}

	acc, ok := m.accounts[g.AccountID]
	if !ok {
		return transactions.Record{}, fmt.Errorf("grant credits: %w", ledger.ErrAccountNotFound)
	}

	if rec, found := m.findLocked(g.AccountID, g.Provider, g.Reference); found {
		return rec, ledger.ErrAlreadyApplied
	}

	rec := transactions.Record{
		ID:                uuid.New(),
		AccountID:         g.AccountID,
		AmountMinor:       g.AmountMinor,
		Currency:          g.Currency,
		CreditsGranted:    g.Credits,
		PlanName:          g.PlanName,
		Provider:          string(g.Provider),
		ProviderReference: g.Reference,
		Status:            transactions.StatusCompleted,
		CreatedAt:         m.now(),
	}
	m.records = append(m.records, rec)

	acc.Credits += g.Credits
	acc.IsPro = acc.IsPro || g.Subscription
	acc.UpdatedAt = rec.CreatedAt
	m.accounts[g.AccountID] = acc

	return rec, nil
}

func (m *Memory) ConsumeCredit(_ context.Context, id uuid.UUID, purpose string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return 0, fmt.Errorf("consume credit: %w", ledger.ErrAccountNotFound)
	}
	if acc.Credits < 1 {
		return 0, fmt.Errorf("consume credit: %w", ledger.ErrInsufficientCredits)
	}

	acc.Credits--
	m.accounts[id] = acc
	m.usage[id] = append(m.usage[id], purpose)

	return acc.Credits, nil
}

func (m *Memory) GetAccount(_ context.Context, id uuid.UUID) (accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return accounts.Account{}, fmt.Errorf("get account: %w", ledger.ErrAccountNotFound)
	}

	return acc, nil
}

func (m *Memory) FindSettlement(_ context.Context, id uuid.UUID, p payments.Provider, ref string) (transactions.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, found := m.findLocked(id, p, ref)
	return rec, found, nil
}

func (m *Memory) ListTransactions(_ context.Context, id uuid.UUID, page transactions.Page) ([]transactions.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return nil, fmt.Errorf("list transactions: %w", ledger.ErrAccountNotFound)
	}

	out := m.recordsLocked(id)
	if len(out) > page.EffectiveLimit() {
		out = out[:page.EffectiveLimit()]
	}

	return out, nil
}

// Records returns every record of the account, newest first.
func (m *Memory) Records(id uuid.UUID) []transactions.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.recordsLocked(id)
}

func (m *Memory) Credits(id uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.accounts[id].Credits
}

func (m *Memory) Usage(id uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.usage[id]...)
}

func (m *Memory) recordsLocked(id uuid.UUID) []transactions.Record {
	var out []transactions.Record
	for _, r := range m.records {
		if r.AccountID == id {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *Memory) findLocked(id uuid.UUID, p payments.Provider, ref string) (transactions.Record, bool) {
	for _, r := range m.records {
		if r.AccountID == id && r.Provider == string(p) && r.ProviderReference == ref && r.Status == transactions.StatusCompleted {
			return r, true
		}
	}
	return transactions.Record{}, false
}
