package api

import (
	"context"
	"net/http"

	"github.com/okian/eventhub/pkg/logger"
)

// StatusDependencies defines refresh and status operations.
type StatusDependencies interface {
	Refresh(ctx context.Context, force bool) (Snapshot, error)
	RefreshExternal(ctx context.Context) (Snapshot, error)
	Status(ctx context.Context) (Snapshot, error)
}

// StatusHandler handles refresh and status requests.
type StatusHandler struct {
	deps   StatusDependencies
	logger logger.Logger
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(deps StatusDependencies, log logger.Logger) *StatusHandler {
	return &StatusHandler{deps: deps, logger: log}
}

// HandleStatus handles GET /status.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.status"
	snap, err := h.deps.Status(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleRefresh handles POST /events/refresh[?force=true]. Source failures
// are reported in the returned status, not as an error response.
func (h *StatusHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh"
	force, err := queryBool(r, "force")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	snap, err := h.deps.Refresh(r.Context(), force)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleRefreshExternal handles POST /events/refresh/external.
func (h *StatusHandler) HandleRefreshExternal(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh_external"
	snap, err := h.deps.RefreshExternal(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
