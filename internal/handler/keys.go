package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prismkeys/prism/internal/model"
	"github.com/prismkeys/prism/internal/service"
)

// KeyHandler serves the public key validation routes.
type KeyHandler struct {
	validator *service.Validator
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(validator *service.Validator) *KeyHandler {
	return &KeyHandler{validator: validator}
}

// Validate handles GET /api/keys/validate/{keyCode}/{discordUserId}.
// Negative outcomes are 200 responses with valid=false.
func (h *KeyHandler) Validate(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "keyCode")
	caller := chi.URLParam(r, "discordUserId")
	if code == "" || caller == "" {
		writeJSON(w, http.StatusBadRequest, model.ValidationResponse{
			Error: "Missing keyCode or discordUserId",
		})
		return
	}

	res, err := h.validator.Validate(r.Context(), code, caller)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, model.ValidationResponse{
			Error: "Internal server error",
		})
		return
	}
	if !res.Valid {
		writeJSON(w, http.StatusOK, model.ValidationResponse{Error: res.Reason})
		return
	}

	expires := res.ExpiresAt
	writeJSON(w, http.StatusOK, model.ValidationResponse{
		Valid:      true,
		ExpiresAt:  &expires,
		OwnerLabel: res.OwnerLabel,
		Message:    res.Reason,
	})
}

// ValidateLegacy handles GET /api/keys/validate/{keyCode}, which skips the
// ownership check.
func (h *KeyHandler) ValidateLegacy(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "keyCode")

	res, err := h.validator.ValidateLegacy(r.Context(), code)
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, model.LegacyValidationResponse{
			Message: service.ReasonNotFound,
		})
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to validate key")
		return
	}

	writeJSON(w, http.StatusOK, model.LegacyValidationResponse{
		Valid:   res.Valid,
		Key:     res.Key,
		Message: res.Message,
	})
}
