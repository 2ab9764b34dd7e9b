package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/eventhub/internal/adapters/eventbrite"
	"github.com/okian/eventhub/pkg/logger"
)

// ProxyDependencies defines the credentialed provider search.
type ProxyDependencies interface {
	ProxySearch(ctx context.Context, location string, limit int) ([]ExternalItem, error)
}

// ProxyHandler serves provider searches for clients that hold no credential.
type ProxyHandler struct {
	deps   ProxyDependencies
	logger logger.Logger
}

// NewProxyHandler creates a new proxy handler.
func NewProxyHandler(deps ProxyDependencies, log logger.Logger) *ProxyHandler {
	return &ProxyHandler{deps: deps, logger: log}
}

// HandleSearch handles GET /proxy/eventbrite?location=&limit=. Failures are
// reported in the envelope error field.
func (h *ProxyHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	const op = "api.proxy_search"
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, eventbrite.Envelope{Events: []ExternalItem{}, Error: err.Error()})
		return
	}

	items, err := h.deps.ProxySearch(r.Context(), r.URL.Query().Get("location"), limit)
	if err != nil {
		status := http.StatusBadGateway
		msg := "Failed to fetch events from Eventbrite"
		if errors.Is(err, eventbrite.ErrNoCredential) {
			status = http.StatusServiceUnavailable
			msg = "Eventbrite API key not configured"
		}
		h.logger.Warn(r.Context(), "proxy search failed", logger.Error(WrapKind(op, ErrUpstream, err)))
		writeJSON(w, status, eventbrite.Envelope{Events: []ExternalItem{}, Error: msg})
		return
	}
	if items == nil {
		items = []ExternalItem{}
	}
	writeJSON(w, http.StatusOK, eventbrite.Envelope{Events: items})
}
