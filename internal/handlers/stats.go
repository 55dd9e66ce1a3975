package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/assaytrack/apiserver/internal/services"
)

// StatsHandler serves dashboard aggregates.
type StatsHandler struct {
	statsService *services.StatsService
}

func NewStatsHandler(statsService *services.StatsService) *StatsHandler {
	return &StatsHandler{statsService: statsService}
}

// StatsRouter registers stats routes. The caller wraps the router with
// auth middleware.
func StatsRouter(r chi.Router, statsService *services.StatsService) {
	handler := NewStatsHandler(statsService)

	r.Get("/overview", handler.Overview)
	r.Get("/system", handler.System)
}

// Overview returns the caller-scoped dashboard numbers.
func (h *StatsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.statsService.Overview(r.Context(), identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, overview)
}

// System returns platform-wide operational stats; privileged roles only.
func (h *StatsHandler) System(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsService.System(r.Context(), identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
