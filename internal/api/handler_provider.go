package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/fastprodman/creditsettle/internal/services/checkout"
	"github.com/fastprodman/creditsettle/internal/services/media"
	"github.com/fastprodman/creditsettle/internal/services/projection"
	"github.com/fastprodman/creditsettle/internal/services/webhook"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

type WebhookReceiver interface {
	Receive(ctx context.Context, p payments.Provider, n webhook.Notification) webhook.Response
}

type CheckoutCoordinator interface {
	Initiate(ctx context.Context, p payments.Provider, c payments.Checkout) (*checkout.Session, payments.Initiation, error)
	Session(id uuid.UUID) (*checkout.Session, error)
}

type AccountViews interface {
	Load(ctx context.Context, id uuid.UUID) (projection.View, error)
	Refresh(ctx context.Context, id uuid.UUID) (projection.View, error)
}

type Generator interface {
	Generate(ctx context.Context, accountID uuid.UUID, req media.Request) (media.Result, error)
}

// Services is everything the HTTP layer calls into.
type Services struct {
	Webhooks  WebhookReceiver
	Checkout  CheckoutCoordinator
	Accounts  AccountViews
	Generator Generator
}

// HandlerProvider exposes the services as HTTP handlers.
type HandlerProvider struct {
	svc Services
	log *slog.Logger
}

func NewHandler(svc Services, log *slog.Logger) *HandlerProvider {
	return &HandlerProvider{svc: svc, log: log}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("missing %s", name)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid %s: must not be nil", name)
	}

	return id, nil
}

func parseProviderParam(r *http.Request) (payments.Provider, error) {
	return payments.ParseProvider(strings.ToLower(chi.URLParam(r, "provider")))
}

// readBody reads at most maxBodyBytes of the request.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	return io.ReadAll(r.Body)
}

// decodeJSON decodes a bounded JSON body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if errors.Is(err, io.EOF) {
		return errors.New("empty body")
	}
	if err != nil {
		return errors.New("invalid JSON")
	}

	return nil
}
