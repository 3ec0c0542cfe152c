// Package projection keeps a read-only, cached view of account state that is
// refreshed whenever the ledger reports a change.
package projection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fastprodman/creditsettle/internal/events"
	"github.com/fastprodman/creditsettle/internal/infra/logging"
	"github.com/fastprodman/creditsettle/internal/repos/accounts"
	"github.com/fastprodman/creditsettle/internal/repos/transactions"
	"github.com/google/uuid"
)

type Reader interface {
	GetAccount(ctx context.Context, id uuid.UUID) (accounts.Account, error)
	ListTransactions(ctx context.Context, id uuid.UUID, page transactions.Page) ([]transactions.Record, error)
}

type View struct {
	AccountID    uuid.UUID             `json:"accountId"`
	Credits      int64                 `json:"credits"`
	IsPro        bool                  `json:"isPro"`
	Transactions []transactions.Record `json:"transactions"`
	LoadedAt     time.Time             `json:"loadedAt"`
}

type Projection struct {
	reader   Reader
	pageSize int
	ttl      time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu    sync.RWMutex
	views map[uuid.UUID]View
}

// New builds a projection whose cached views are trusted for at most ttl.
// Events refresh them sooner; the ttl bounds staleness when a writer outside
// this process publishes nothing. A ttl of zero disables expiry.
func New(reader Reader, pageSize int, ttl time.Duration) *Projection {
	return &Projection{
		reader:   reader,
		pageSize: pageSize,
		ttl:      ttl,
		now:      time.Now,
		log:      logging.Component("projection"),
		views:    map[uuid.UUID]View{},
	}
}

// Load returns the cached view, fetching it on first use or once it is
// older than the ttl.
func (p *Projection) Load(ctx context.Context, id uuid.UUID) (View, error) {
	p.mu.RLock()
	v, ok := p.views[id]
	p.mu.RUnlock()
	if ok && (p.ttl <= 0 || p.now().Sub(v.LoadedAt) < p.ttl) {
		return v, nil
	}

	return p.Refresh(ctx, id)
}

// Refresh re-reads the account from the ledger and replaces the cached view.
func (p *Projection) Refresh(ctx context.Context, id uuid.UUID) (View, error) {
	acc, err := p.reader.GetAccount(ctx, id)
	if err != nil {
		return View{}, fmt.Errorf("load account view: %w", err)
	}

	txs, err := p.reader.ListTransactions(ctx, id, transactions.Page{Limit: p.pageSize})
	if err != nil {
		return View{}, fmt.Errorf("load account view: %w", err)
	}
	if txs == nil {
		txs = []transactions.Record{}
	}

	v := View{
		AccountID:    acc.ID,
		Credits:      acc.Credits,
		IsPro:        acc.IsPro,
		Transactions: txs,
		LoadedAt:     p.now().UTC(),
	}

	p.mu.Lock()
	p.views[id] = v
	p.mu.Unlock()

	return v, nil
}

func (p *Projection) Invalidate(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.views, id)
}

// Run refetches the affected account for every event until ctx is done or
// the channel is closed. Accounts nobody has loaded yet are skipped.
func (p *Projection) Run(ctx context.Context, in <-chan events.Settlement) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			p.apply(ctx, ev)
		}
	}
}

func (p *Projection) apply(ctx context.Context, ev events.Settlement) {
	id, err := uuid.Parse(ev.UserID)
	if err != nil {
		p.log.Warn("event without account id", "kind", ev.Kind, "user_id", ev.UserID)
		return
	}

	p.mu.RLock()
	_, cached := p.views[id]
	p.mu.RUnlock()
	if !cached {
		return
	}

	p.Invalidate(id)
	if _, err := p.Refresh(ctx, id); err != nil {
		p.log.Warn("refresh account view", "account_id", id, "error", err)
	}
}
