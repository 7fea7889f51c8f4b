// Package handlers implements the read-only HTTP surface over a chain
// store: session listing, message retrieval, and on-demand verification.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/eldtechnologies/attestlog/internal/store"
	"github.com/eldtechnologies/attestlog/internal/verify"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store   store.ChainStore
	trusted verify.TrustedKeys
}

// NewHandler creates a new Handler. trusted may be nil, in which case
// verification reports every agent as unknown.
func NewHandler(st store.ChainStore, trusted verify.TrustedKeys) *Handler {
	return &Handler{store: st, trusted: trusted}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
