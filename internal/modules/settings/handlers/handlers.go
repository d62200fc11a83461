// Package handlers provides HTTP handlers for portfolio settings.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/folio/internal/modules/settings"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler provides HTTP handlers for settings endpoints
type Handler struct {
	service *settings.Service
	log     zerolog.Logger
}

// NewHandler creates a new settings handler
func NewHandler(service *settings.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "settings").Logger(),
	}
}

// RegisterRoutes registers the settings routes under /portfolio/settings
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/portfolio/settings", h.HandleGet)
	r.Post("/portfolio/settings", h.HandleUpdate)
}

// HandleGet handles GET /api/portfolio/settings
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	current, err := h.service.Get(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get settings")
		h.writeError(w, http.StatusInternalServerError, "Failed to get settings")
		return
	}
	h.writeJSON(w, http.StatusOK, current)
}

// HandleUpdate handles POST /api/portfolio/settings with a partial object
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var partial map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.service.Update(r.Context(), partial)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to update settings")
		h.writeError(w, http.StatusInternalServerError, "Failed to update settings")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"settings": updated,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
