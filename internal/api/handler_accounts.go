package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/fastprodman/creditsettle/internal/services/ledger"
	"github.com/fastprodman/creditsettle/internal/services/media"
	"github.com/fastprodman/creditsettle/internal/services/projection"
)

// GetAccountHandler handles GET /accounts/{accountId}
func (h *HandlerProvider) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "accountId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid accountId in path")
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	var v projection.View
	if refresh {
		v, err = h.svc.Accounts.Refresh(r.Context(), id)
	} else {
		v, err = h.svc.Accounts.Load(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}

		h.log.Error("load account", "error", err, "account_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, v)
}

// GenerateHandler handles POST /accounts/{accountId}/generations
func (h *HandlerProvider) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "accountId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid accountId in path")
		return
	}

	var req media.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Generator.Generate(r.Context(), id, req)
	if err != nil {
		var exhausted *media.ExhaustedError
		switch {
		case errors.Is(err, media.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrInsufficientCredits):
			writeError(w, http.StatusPaymentRequired, "insufficient credits")
		case errors.Is(err, ledger.ErrAccountNotFound):
			writeError(w, http.StatusNotFound, "account not found")
		case errors.Is(err, media.ErrNoBackends):
			writeError(w, http.StatusServiceUnavailable, "generation unavailable")
		case errors.Is(err, media.ErrQuotaExceeded), errors.As(err, &exhausted):
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":       "generation failed",
				"creditsLeft": res.CreditsLeft,
			})
		default:
			h.log.Error("generate", "error", err, "account_id", id)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}
