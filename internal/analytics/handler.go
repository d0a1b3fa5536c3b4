package analytics

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/store"
)

const maxTopQueries = 100

// Handler serves live aggregates and the last persisted snapshot.
type Handler struct {
	aggregator *Aggregator
	snapshots  *SnapshotStore
	logger     *slog.Logger
}

// NewHandler serves agg; snapshots may be nil, which disables Snapshot.
func NewHandler(agg *Aggregator, snapshots *SnapshotStore) *Handler {
	return &Handler{
		aggregator: agg,
		snapshots:  snapshots,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Register mounts the analytics routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshot", h.Snapshot)
}

// Stats serves the live aggregate. ?top=N sizes the query rankings.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := DefaultTopQueries
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTopQueries {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top must be between 1 and 100"})
			return
		}
		top = n
	}
	h.writeJSON(w, http.StatusOK, h.aggregator.StatsTop(top))
}

// Snapshot serves the newest persisted aggregate, which survives restarts.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshots disabled"})
		return
	}
	stats, err := h.snapshots.Latest(r.Context())
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot yet"})
	case err != nil:
		h.logger.Error("loading analytics snapshot", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": http.StatusText(http.StatusInternalServerError)})
	default:
		h.writeJSON(w, http.StatusOK, stats)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
