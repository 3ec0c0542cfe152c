package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(svc Services, log *slog.Logger) http.Handler {
	h := NewHandler(svc, log)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(instrument(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/webhooks/{provider}", h.WebhookHandler)

	r.Route("/checkout", func(r chi.Router) {
		r.Post("/{provider}", h.StartCheckoutHandler)
		r.Get("/sessions/{sessionId}", h.GetSessionHandler)
		r.Delete("/sessions/{sessionId}", h.CloseSessionHandler)
		r.Post("/sessions/{sessionId}/signals", h.SignalHandler)
	})

	r.Route("/accounts/{accountId}", func(r chi.Router) {
		r.Get("/", h.GetAccountHandler)
		r.Post("/generations", h.GenerateHandler)
	})

	return r
}
