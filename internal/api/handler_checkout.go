package api

import (
	"errors"
	"net/http"

	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/fastprodman/creditsettle/internal/services/checkout"
	"github.com/fastprodman/creditsettle/internal/services/ledger"
	"github.com/google/uuid"
)

type checkoutRequest struct {
	AccountID       uuid.UUID `json:"accountId"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Plan            string    `json:"plan"`
	PaymentMethodID string    `json:"paymentMethodId"`
}

type checkoutResponse struct {
	Session    checkout.Snapshot   `json:"session"`
	Initiation payments.Initiation `json:"initiation"`
}

// StartCheckoutHandler handles POST /checkout/{provider}
func (h *HandlerProvider) StartCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	provider, err := parseProviderParam(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, ok := payments.PlanByName(req.Plan)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown plan")
		return
	}

	s, started, err := h.svc.Checkout.Initiate(r.Context(), provider, payments.Checkout{
		AccountID:       req.AccountID,
		Email:           req.Email,
		Name:            req.Name,
		Plan:            plan,
		PaymentMethodID: req.PaymentMethodID,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrUnknownProvider):
			writeError(w, http.StatusNotFound, "unknown provider")
		case errors.Is(err, payments.ErrInvalidCheckout):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrAccountNotFound):
			writeError(w, http.StatusNotFound, "account not found")
		case errors.Is(err, payments.ErrPaymentDeclined):
			writeError(w, http.StatusPaymentRequired, "payment declined")
		case errors.Is(err, payments.ErrProviderUnavailable):
			writeError(w, http.StatusServiceUnavailable, "payment provider unavailable")
		default:
			h.log.Error("start checkout", "error", err, "provider", provider)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{Session: s.Snapshot(), Initiation: started})
}

// SignalHandler handles POST /checkout/sessions/{sessionId}/signals
func (h *HandlerProvider) SignalHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	_, err = s.Deliver(r.Context(), body)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, s.Snapshot())
	case errors.Is(err, checkout.ErrInvalidSignal):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, checkout.ErrSessionFinished):
		writeJSON(w, http.StatusConflict, s.Snapshot())
	default:
		writeError(w, http.StatusServiceUnavailable, "session busy")
	}
}

// GetSessionHandler handles GET /checkout/sessions/{sessionId}
func (h *HandlerProvider) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, s.Snapshot())
}

// CloseSessionHandler handles DELETE /checkout/sessions/{sessionId}. The
// session keeps waiting for the provider.
func (h *HandlerProvider) CloseSessionHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	s.Close()
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *HandlerProvider) lookupSession(w http.ResponseWriter, r *http.Request) (*checkout.Session, bool) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sessionId in path")
		return nil, false
	}

	s, err := h.svc.Checkout.Session(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}

	return s, true
}
