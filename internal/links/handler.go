package links

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/proto"
)

const maxBodyBytes = 1 << 20

// Handler serves the link catalog over HTTP.
type Handler struct {
	service *Service
	cache   *cache.QueryCache
	logger  *slog.Logger
}

// NewHandler builds the HTTP surface. queryCache may be nil when caching is
// disabled.
func NewHandler(service *Service, queryCache *cache.QueryCache) *Handler {
	return &Handler{
		service: service,
		cache:   queryCache,
		logger:  slog.Default().With("component", "links-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/links", h.AddLink)
	mux.HandleFunc("GET /api/v1/links", h.ListLinks)
	mux.HandleFunc("GET /api/v1/links/{id}", h.GetLink)
	mux.HandleFunc("DELETE /api/v1/links/{id}", h.DeleteLink)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/commit", h.Commit)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) AddLink(w http.ResponseWriter, r *http.Request) {
	var req proto.AddLinkRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.Wrap(apperrors.ErrInvalidInput, err, "decoding request body"))
		return
	}
	link, err := h.service.AddLink(r.Context(), req.URL, req.Description, req.Tags)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ToProto(link))
}

func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	links := h.service.ListLinks(r.Context())
	resp := proto.ListLinksResponse{Data: make([]proto.Link, len(links))}
	for i, l := range links {
		resp.Data[i] = ToProto(l)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ToProto(link))
}

func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteLink(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, r, apperrors.Wrap(apperrors.ErrQuerySyntax, nil, "query parameter 'q' is required"))
		return
	}
	var limit int
	if s := r.URL.Query().Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			h.writeError(w, r, apperrors.Wrap(apperrors.ErrInvalidLimit, nil, "got %q", s))
			return
		}
		limit = parsed
	}

	resp, err := h.service.Search(r.Context(), query, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SearchToProto(resp))
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	gen, docs, err := h.service.Commit(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, proto.CommitResponse{Generation: gen, Docs: int64(docs)})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("search cache invalidated")
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to a status code. Server-side failures are logged
// and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		message = http.StatusText(status)
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
