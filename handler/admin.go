// Package handler exposes the admin/observability REST surface in front of
// the composite orchestrator and similarity index.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/alfreddev/cachify/cache"
	"github.com/alfreddev/cachify/similarity"
)

// AdminHandler handles cache management REST endpoints.
type AdminHandler struct {
	facade *cache.Facade
	index  *similarity.Index
	logger zerolog.Logger
}

// NewAdminHandler creates a new admin handler. index may be nil when
// similarity mode is disabled.
func NewAdminHandler(facade *cache.Facade, index *similarity.Index, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		facade: facade,
		index:  index,
		logger: logger.With().Str("handler", "admin").Logger(),
	}
}

// InvalidateKey handles DELETE /v1/cache/{key}.
func (h *AdminHandler) InvalidateKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.facade.Remove(r.Context(), key); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.logger.Info().Str("key", key).Msg("cache entry invalidated")
	writeJSON(w, http.StatusOK, map[string]interface{}{"invalidated": true, "key": key})
}

// FlushAll handles DELETE /v1/cache.
func (h *AdminHandler) FlushAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.facade.FlushAll(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.logger.Info().Int("evicted", n).Msg("l1 cache flushed")
	writeJSON(w, http.StatusOK, map[string]interface{}{"flushed": true, "evicted": n})
}

// SimilarityStats handles GET /v1/cache/similarity/stats.
func (h *AdminHandler) SimilarityStats(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": true,
		"entries": h.index.Len(),
	})
}

// Health handles GET /healthz.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "cachify"})
}

// Ready handles GET /ready. A nil pinger (no Redis configured) is reported
// ready regardless: L2 is optional infrastructure the orchestrator
// degrades gracefully without.
func Ready(pinger func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			if err := pinger(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
