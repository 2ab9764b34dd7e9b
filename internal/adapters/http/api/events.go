package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/eventhub/internal/domain/model"
	"github.com/okian/eventhub/pkg/logger"
)

// EventDependencies defines the event read and write operations.
type EventDependencies interface {
	FilteredEvents(ctx context.Context) (EventList, error)
	AllEvents(ctx context.Context) (EventList, error)
	SelectCategory(ctx context.Context, c model.Category) (EventList, error)
	CreateEvent(ctx context.Context, d model.Draft) (string, error)
	GetEvent(ctx context.Context, id string) (model.Event, error)
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps   EventDependencies
	logger logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies, log logger.Logger) *EventsHandler {
	return &EventsHandler{deps: deps, logger: log}
}

// HandleList handles GET /events: the filtered view.
func (h *EventsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_events"
	list, err := h.deps.FilteredEvents(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleListAll handles GET /events/all: the full collection.
func (h *EventsHandler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_all_events"
	list, err := h.deps.AllEvents(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleSelectCategory handles PUT /events/category.
func (h *EventsHandler) HandleSelectCategory(w http.ResponseWriter, r *http.Request) {
	const op = "api.select_category"
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	c, ok := model.ParseFilter(req.Category)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request",
			WrapKind(op, ErrBadRequest, errors.New("unknown category "+strings.TrimSpace(req.Category))))
		return
	}
	list, err := h.deps.SelectCategory(r.Context(), c)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreate handles POST /events.
func (h *EventsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_event"
	var d model.Draft
	if err := decodeJSON(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	id, err := h.deps.CreateEvent(r.Context(), d)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{ID: id})
}

// HandleGet handles GET /events/{id}.
func (h *EventsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_event"
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	e, err := h.deps.GetEvent(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
