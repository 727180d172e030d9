package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"skyreg/internal/egress"
	"skyreg/internal/online"
	"skyreg/internal/registry"
	"skyreg/internal/registry/syncer"
)

// SyncService is the synchronizer surface the HTTP layer consumes.
type SyncService interface {
	Status(ctx context.Context) (syncer.Status, error)
	Trigger(ctx context.Context, url string) error
}

// ResolveService is the resolver surface the HTTP layer consumes.
type ResolveService interface {
	Resolve(ctx context.Context, identifier, hint string) (*registry.Summary, error)
	OnlineEnabled() bool
}

// Handler handles registry and resolution endpoints.
type Handler struct {
	logger   *slog.Logger
	sync     SyncService
	resolver ResolveService
	cache    online.OutcomeCache // nil when the online tier is disabled
}

// NewHandler creates the HTTP handler set.
func NewHandler(sync SyncService, resolver ResolveService, cache online.OutcomeCache, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		sync:     sync,
		resolver: resolver,
		cache:    cache,
	}
}

type onlineStatus struct {
	Enabled      bool `json:"enabled"`
	CacheEntries int  `json:"cacheEntries"`
}

type statusResponse struct {
	Registry   *registry.SyncMetadata `json:"registry"`
	InProgress bool                   `json:"inProgress"`
	Progress   *registry.Progress     `json:"progress,omitempty"`
	LastError  string                 `json:"lastError,omitempty"`
	Online     onlineStatus           `json:"online"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	st, err := h.sync.Status(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "status read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}

	resp := statusResponse{
		Registry:   st.LastSync,
		InProgress: st.Running,
		Progress:   st.Progress,
		LastError:  st.LastError,
		Online:     onlineStatus{Enabled: h.resolver.OnlineEnabled()},
	}
	if h.cache != nil {
		if n, err := h.cache.Len(ctx); err == nil {
			resp.Online.CacheEntries = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type syncRequest struct {
	URL string `json:"url"`
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.sync.Trigger(ctx, req.URL)
	switch {
	case errors.Is(err, syncer.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "sync already running")
	case errors.Is(err, egress.ErrUnsafeDestination):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.ErrorContext(ctx, "sync trigger failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sync trigger failed")
	default:
		writeJSON(w, http.StatusAccepted, map[string]bool{"started": true})
	}
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identifier := r.URL.Query().Get("identifier")
	hint := r.URL.Query().Get("hint")
	if identifier == "" && hint == "" {
		writeError(w, http.StatusBadRequest, "identifier or hint required")
		return
	}

	summary, err := h.resolver.Resolve(ctx, identifier, hint)
	if err != nil {
		h.logger.ErrorContext(ctx, "resolve failed", "error", err)
		writeError(w, http.StatusInternalServerError, "resolve failed")
		return
	}
	if summary == nil {
		writeError(w, http.StatusNotFound, "unknown identifier")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
