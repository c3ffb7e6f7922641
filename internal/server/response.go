package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/wesm/collabhub/internal/models"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Warning: failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// handleDomainError maps err to a status. Anything unclassified is a 500
// carrying fallback, so upstream detail never reaches the caller.
func handleDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case err == nil:
		return
	case errors.Is(err, models.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "Access token required")
	case errors.Is(err, models.ErrInvalidSignature):
		respondError(w, http.StatusUnauthorized, "Invalid signature")
	case errors.Is(err, models.ErrForbidden):
		respondError(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, "Resource not found")
	default:
		log.Printf("Error: %s: %v", fallback, err)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}
