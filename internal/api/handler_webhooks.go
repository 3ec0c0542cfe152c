package api

import (
	"errors"
	"net/http"

	"github.com/fastprodman/creditsettle/internal/services/webhook"
)

// WebhookHandler handles POST /webhooks/{provider}
func (h *HandlerProvider) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	provider, err := parseProviderParam(r)
	if err != nil {
		writeJSON(w, http.StatusNotFound, webhook.Response{Message: "unknown provider"})
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, webhook.Response{Message: "payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, webhook.Response{Message: "unreadable body"})
		return
	}

	resp := h.svc.Webhooks.Receive(r.Context(), provider, webhook.Notification{
		Body:   body,
		Header: r.Header,
		Query:  r.URL.Query(),
	})

	writeJSON(w, resp.HTTPStatus, resp)
}
