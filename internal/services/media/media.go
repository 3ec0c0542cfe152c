// Package media spends one credit per generation and runs the request
// against an ordered list of generation backends.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/creditsettle/internal/events"
	"github.com/fastprodman/creditsettle/internal/infra/logging"
	"github.com/fastprodman/creditsettle/internal/metrics"
	"github.com/google/uuid"
)

var ErrInvalidRequest = errors.New("invalid generation request")

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

type Request struct {
	Kind        Kind   `json:"kind"`
	SourceImage string `json:"sourceImage"`
	Style       string `json:"style"`
	Prompt      string `json:"prompt"`
}

func (r Request) Validate() error {
	switch {
	case r.Kind != KindImage && r.Kind != KindVideo:
		return fmt.Errorf("%w: kind must be image or video", ErrInvalidRequest)
	case r.SourceImage == "":
		return fmt.Errorf("%w: source image required", ErrInvalidRequest)
	}
	return nil
}

type Result struct {
	MediaURL    string `json:"mediaUrl,omitempty"`
	Backend     string `json:"backend,omitempty"`
	CreditsLeft int64  `json:"creditsLeft"`
}

type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

type Ledger interface {
	ConsumeCredit(ctx context.Context, accountID uuid.UUID, purpose string) (int64, error)
}

type Service struct {
	ledger    Ledger
	publisher events.Publisher
	backends  []Backend
	log       *slog.Logger
}

func NewService(l Ledger, publisher events.Publisher, backends ...Backend) *Service {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &Service{ledger: l, publisher: publisher, backends: backends, log: logging.Component("media")}
}

// Generate consumes one credit and then generates. The credit is not
// returned when every backend fails.
func (s *Service) Generate(ctx context.Context, accountID uuid.UUID, req Request) (Result, error) {
	if req.Kind == "" {
		req.Kind = KindImage
	}
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if len(s.backends) == 0 {
		return Result{}, ErrNoBackends
	}

	left, err := s.ledger.ConsumeCredit(ctx, accountID, "generate:"+string(req.Kind))
	if err != nil {
		return Result{}, fmt.Errorf("generate: %w", err)
	}

	ev := events.Settlement{Kind: events.KindConsumed, UserID: accountID.String(), OccurredAt: time.Now().UTC()}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn("publish consumption", "error", err, "account_id", accountID)
	}

	type generated struct{ url, backend string }
	out, err := Fallback(ctx, s.backends, func(ctx context.Context, b Backend) (generated, error) {
		url, err := b.Generate(ctx, req)
		switch {
		case err == nil:
			metrics.MediaAttempts.WithLabelValues(b.Name(), "ok").Inc()
		case errors.Is(err, ErrQuotaExceeded):
			metrics.MediaAttempts.WithLabelValues(b.Name(), "quota").Inc()
		default:
			metrics.MediaAttempts.WithLabelValues(b.Name(), "error").Inc()
			s.log.Warn("generation backend failed, trying next", "backend", b.Name(), "error", err)
		}
		return generated{url: url, backend: b.Name()}, err
	})
	if err != nil {
		s.log.Error("generation failed", "account_id", accountID, "error", err)
		return Result{CreditsLeft: left}, fmt.Errorf("generate: %w", err)
	}

	return Result{MediaURL: out.url, Backend: out.backend, CreditsLeft: left}, nil
}
