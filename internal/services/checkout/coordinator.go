package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fastprodman/creditsettle/internal/events"
	"github.com/fastprodman/creditsettle/internal/infra/logging"
	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/google/uuid"
)

type Coordinator struct {
	adapters  payments.Registry
	ledger    Ledger
	publisher events.Publisher
	cfg       Config
	log       *slog.Logger

	registry *Registry
	wg       sync.WaitGroup
}

func New(adapters payments.Registry, l Ledger, publisher events.Publisher, cfg Config) *Coordinator {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &Coordinator{
		adapters:  adapters,
		ledger:    l,
		publisher: publisher,
		cfg:       cfg,
		log:       logging.Component("checkout"),
		registry:  NewRegistry(cfg.SessionTTL),
	}
}

// Initiate prices the checkout, opens the payment with the provider and
// starts a session that outlives the calling request.
func (c *Coordinator) Initiate(ctx context.Context, p payments.Provider, chk payments.Checkout) (*Session, payments.Initiation, error) {
	adapter, err := c.adapters.Get(p)
	if err != nil {
		return nil, payments.Initiation{}, err
	}

	if err := chk.Validate(); err != nil {
		return nil, payments.Initiation{}, err
	}

	acc, err := c.ledger.GetAccount(ctx, chk.AccountID)
	if err != nil {
		return nil, payments.Initiation{}, fmt.Errorf("initiate checkout: %w", err)
	}
	if chk.Email == "" {
		chk.Email = acc.Email
	}

	s := newSession(chk, adapter, c.ledger, c.publisher, c.cfg, c.log)
	if chk.IdempotencyKey == "" {
		s.checkout.IdempotencyKey = s.id.String()
	}

	started, err := adapter.Initiate(ctx, s.checkout)
	if err != nil {
		return nil, payments.Initiation{}, fmt.Errorf("initiate checkout: %w", err)
	}
	s.setReference(started.Reference)

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	c.registry.Put(s)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		s.run(loopCtx)
		c.registry.Expire(s.id)
	}()

	if started.Reference != "" && started.Status != "" {
		s.signals <- payments.Outcome{Provider: p, Reference: started.Reference, Status: started.Status}
	}

	s.log.Info("checkout started", "reference", started.Reference, "plan", chk.Plan.Name, "amount", chk.Plan.AmountMinor)

	return s, started, nil
}

func (c *Coordinator) Session(id uuid.UUID) (*Session, error) {
	s, ok := c.registry.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Shutdown stops every running session loop and waits for them.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.registry.CancelAll()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("checkout sessions still running: %w", ctx.Err())
	}
}

// Registry indexes live sessions and forgets finished ones after a TTL.
type Registry struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[uuid.UUID]*Session
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{ttl: ttl, sessions: map[uuid.UUID]*Session{}}
}

func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.id] = s
}

func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Expire schedules removal of a finished session.
func (r *Registry) Expire(id uuid.UUID) {
	if r.ttl <= 0 {
		r.remove(id)
		return
	}
	time.AfterFunc(r.ttl, func() { r.remove(id) })
}

func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.cancel != nil {
			s.cancel()
		}
	}
}

func (r *Registry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
}
