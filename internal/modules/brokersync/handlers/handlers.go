// Package handlers provides HTTP handlers for broker sync.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/folio/internal/modules/brokersync"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// SnapshotLister lists archived raw pulls
type SnapshotLister interface {
	List(ctx context.Context) ([]brokersync.ArchiveEntry, error)
}

// Handler handles broker sync HTTP requests
type Handler struct {
	orchestrator *brokersync.Orchestrator
	archive      SnapshotLister
	log          zerolog.Logger
}

// NewHandler creates a new broker sync handler. archive may be nil.
func NewHandler(orchestrator *brokersync.Orchestrator, archive SnapshotLister, log zerolog.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		archive:      archive,
		log:          log.With().Str("handler", "brokersync").Logger(),
	}
}

// RegisterRoutes registers the broker routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/broker", func(r chi.Router) {
		r.Post("/pull", h.HandlePull)
		r.Get("/status", h.HandleStatus)
		r.Get("/snapshots", h.HandleSnapshots)
	})
}

// HandlePull runs a manual sync and returns its result
func (h *Handler) HandlePull(w http.ResponseWriter, r *http.Request) {
	result := h.orchestrator.TriggerManual(r.Context())
	h.writeJSON(w, statusCode(result), result)
}

// HandleStatus returns the integration status and last pull info
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.orchestrator.Status(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get sync status")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// HandleSnapshots lists the archived raw pulls
func (h *Handler) HandleSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		h.writeJSON(w, http.StatusOK, []brokersync.ArchiveEntry{})
		return
	}
	entries, err := h.archive.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list snapshots")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func statusCode(result brokersync.SyncResult) int {
	var (
		configErr *brokersync.ConfigError
		authErr   *brokersync.AuthError
		fetchErr  *brokersync.FetchError
	)
	switch {
	case result.Status == brokersync.StatusOK:
		return http.StatusOK
	case errors.Is(result.Err, brokersync.ErrBusy):
		return http.StatusConflict
	case errors.As(result.Err, &configErr):
		return http.StatusBadRequest
	case errors.As(result.Err, &authErr):
		return http.StatusUnauthorized
	case errors.As(result.Err, &fetchErr):
		if fetchErr.Timeout() {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
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
