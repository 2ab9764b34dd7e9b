// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/eventhub/internal/app"
	"github.com/okian/eventhub/internal/domain/model"
	"github.com/okian/eventhub/internal/domain/normalize"
	"github.com/okian/eventhub/internal/domain/types"
	"github.com/okian/eventhub/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	StatusDependencies
	ProxyDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	eventsHandler *EventsHandler
	statusHandler *StatusHandler
	proxyHandler  *ProxyHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	log := logger.Get().Named("api")
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		eventsHandler: NewEventsHandler(deps, log),
		statusHandler: NewStatusHandler(deps, log),
		proxyHandler:  NewProxyHandler(deps, log),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /status", MetricsMiddleware(s.statusHandler.HandleStatus, "status"))

	mux.HandleFunc("GET /events", MetricsMiddleware(s.eventsHandler.HandleList, "events"))
	mux.HandleFunc("POST /events", MetricsMiddleware(s.eventsHandler.HandleCreate, "events_create"))
	mux.HandleFunc("GET /events/all", MetricsMiddleware(s.eventsHandler.HandleListAll, "events_all"))
	mux.HandleFunc("PUT /events/category", MetricsMiddleware(s.eventsHandler.HandleSelectCategory, "events_category"))
	mux.HandleFunc("GET /events/{id}", MetricsMiddleware(s.eventsHandler.HandleGet, "events_get"))
	mux.HandleFunc("POST /events/refresh", MetricsMiddleware(s.statusHandler.HandleRefresh, "events_refresh"))
	mux.HandleFunc("POST /events/refresh/external", MetricsMiddleware(s.statusHandler.HandleRefreshExternal, "events_refresh_external"))

	mux.HandleFunc("GET /proxy/eventbrite", MetricsMiddleware(s.proxyHandler.HandleSearch, "proxy_eventbrite"))
}

// EventList mirrors the read shape of the event views.
type EventList = types.EventList

// Snapshot mirrors the read shape of the aggregate status.
type Snapshot = types.Snapshot

// ExternalItem mirrors one raw item of the provider feed.
type ExternalItem = normalize.ExternalItem

type createResponse struct {
	ID string `json:"id"`
}

type categoryRequest struct {
	Category string `json:"category"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates service and domain errors to responses.
// Internal causes are logged, never returned.
func writeServiceError(ctx context.Context, w http.ResponseWriter, log logger.Logger, op string, err error) {
	var ue *service.UserError
	switch {
	case errors.Is(err, model.ErrInvalidDraft):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrUnavailable))
	case errors.As(err, &ue):
		log.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", errors.New(ue.Msg))
	case errors.Is(err, service.ErrAggregation):
		log.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", errors.New(service.MsgLoadEvents))
	default:
		log.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}
