package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"SolPayCheckout/internal/provider"
	"SolPayCheckout/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	Sessions services.SessionService
}

func NewHandler(sessions services.SessionService) *Handler {
	return &Handler{Sessions: sessions}
}

type createSessionRequest struct {
	OrderID      string          `json:"order_id"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
}

type updateSessionRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	rec, err := h.Sessions.Create(r.Context(), req.OrderID, req.Amount, req.CurrencyCode)
	if err != nil {
		writeProviderError(w, err, "create session failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	rec, err := h.Sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeProviderError(w, err, "get session failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	var req updateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	rec, err := h.Sessions.UpdateQuote(r.Context(), sessionID, req.Amount, req.CurrencyCode)
	if err != nil {
		writeProviderError(w, err, "update session failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) CaptureSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	rec, err := h.Sessions.Capture(r.Context(), sessionID)
	if err != nil {
		writeProviderError(w, err, "capture session failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	rec, err := h.Sessions.Cancel(r.Context(), sessionID)
	if err != nil {
		writeProviderError(w, err, "cancel session failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) RefundSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	rec, err := h.Sessions.Refund(r.Context(), sessionID, req.Amount)
	if err != nil {
		writeProviderError(w, err, "refund session failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Webhook accepts notifications from an external chain monitor and maps them
// onto the session lifecycle.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	action, data := provider.ClassifyWebhook(payload)
	switch action {
	case provider.WebhookAuthorized:
		if _, err := h.Sessions.Get(r.Context(), data.SessionID); err != nil {
			writeProviderError(w, err, "webhook reconcile failed")
			return
		}
	case provider.WebhookCaptured:
		if _, err := h.Sessions.Capture(r.Context(), data.SessionID); err != nil {
			writeProviderError(w, err, "webhook capture failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"action": string(action)})
}

func writeProviderError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, services.ErrSessionClosed):
		writeError(w, http.StatusConflict, "session already in a terminal state")
		return
	case errors.Is(err, services.ErrNotCaptured):
		writeError(w, http.StatusConflict, "session not captured")
		return
	}

	switch provider.KindOf(err) {
	case provider.KindInvalidData:
		writeError(w, http.StatusBadRequest, err.Error())
	case provider.KindRateUnavailable, provider.KindLedgerQueryFailed:
		writeError(w, http.StatusBadGateway, err.Error())
	case provider.KindInsufficientBalance:
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
