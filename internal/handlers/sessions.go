package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/attestlog/internal/chain"
	"github.com/eldtechnologies/attestlog/internal/metrics"
	"github.com/eldtechnologies/attestlog/internal/verify"
)

// SessionsResponse lists recorded sessions.
type SessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// SessionSummary describes one session in a listing.
type SessionSummary struct {
	SessionID     string `json:"session_id"`
	MessageCount  int64  `json:"message_count"`
	LastTimestamp string `json:"last_timestamp,omitempty"`
}

// ListSessions handles GET /v1/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	infos, err := h.store.ListSessions(r.Context())
	metrics.StoreLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	resp := SessionsResponse{Sessions: make([]SessionSummary, 0, len(infos))}
	for _, info := range infos {
		resp.Sessions = append(resp.Sessions, SessionSummary{
			SessionID:     info.SessionID,
			MessageCount:  info.MessageCount,
			LastTimestamp: info.LastTimestamp,
		})
	}
	h.JSON(w, http.StatusOK, resp)
}

// MessagesResponse carries a page of chain messages.
type MessagesResponse struct {
	SessionID string          `json:"session_id"`
	Messages  []chain.Message `json:"messages"`
}

// GetMessages handles GET /v1/sessions/{id}/messages. An optional limit
// query parameter returns only the most recent messages.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	start := time.Now()
	msgs, err := h.store.GetMessages(r.Context(), sessionID, limit)
	metrics.StoreLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if len(msgs) == 0 {
		h.Error(w, http.StatusNotFound, "session not found")
		return
	}

	h.JSON(w, http.StatusOK, MessagesResponse{SessionID: sessionID, Messages: msgs})
}

// VerifyResponse reports the outcome of verifying a stored chain.
type VerifyResponse struct {
	SessionID    string           `json:"session_id"`
	MessageCount int              `json:"message_count"`
	IsValid      bool             `json:"is_valid"`
	Summary      string           `json:"summary"`
	Failures     []verify.Failure `json:"failures"`
}

// VerifySession handles GET /v1/sessions/{id}/verify: it loads the full
// chain and runs the offline verifier against the configured trust map.
func (h *Handler) VerifySession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	start := time.Now()
	msgs, err := h.store.GetChain(r.Context(), sessionID)
	metrics.StoreLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load chain")
		return
	}
	if len(msgs) == 0 {
		h.Error(w, http.StatusNotFound, "session not found")
		return
	}

	result := verify.NewVerifier(h.trusted).Verify(msgs)

	outcome := "valid"
	if !result.IsValid {
		outcome = "invalid"
	}
	metrics.Verifications.WithLabelValues(outcome).Inc()
	for _, f := range result.Failures {
		metrics.VerificationFailures.WithLabelValues(string(f.Kind)).Inc()
	}

	if result.Failures == nil {
		result.Failures = []verify.Failure{}
	}
	h.JSON(w, http.StatusOK, VerifyResponse{
		SessionID:    sessionID,
		MessageCount: len(msgs),
		IsValid:      result.IsValid,
		Summary:      result.Summary,
		Failures:     result.Failures,
	})
}
