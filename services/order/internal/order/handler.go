package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const MaxBodyBytes = 1 << 20

// Handler exposes internal operations endpoints for the order core.
type Handler struct {
	logger    aqm.Logger
	config    *aqm.Config
	tlm       *telemetry.HTTP
	reader    OrderReader
	events    EventReader
	projector *Projector
	router    *Router
}

type HandlerDeps struct {
	Reader    OrderReader
	// Events overrides Reader for the event log when it lives elsewhere.
	Events    EventReader
	Projector *Projector
	Router    *Router
}

func NewHandler(hd HandlerDeps, config *aqm.Config, logger aqm.Logger) *Handler {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Handler{
		logger:    logger,
		config:    config,
		tlm:       telemetry.NewHTTP(),
		reader:    hd.Reader,
		events:    hd.Events,
		projector: hd.Projector,
		router:    hd.Router,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/orders/{id}", func(r chi.Router) {
		r.Post("/project", h.ProjectOrder)
		r.Post("/submit", h.SubmitItems)
		r.Post("/rollup", h.RollupOrder)
		r.Get("/state", h.GetOrderState)
		r.Patch("/tickets/{ticketID}", h.UpdateTicketStatus)
	})
}

func (h *Handler) log(r *http.Request) aqm.Logger {
	return h.logger.With("request_id", aqm.RequestIDFrom(r.Context()))
}

func (h *Handler) ProjectOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ProjectOrder")
	defer finish()

	orderID, ok := parseUUIDParam(w, r, "id", "Invalid order ID")
	if !ok {
		return
	}

	result, err := h.projector.Project(r.Context(), orderID)
	if err != nil {
		h.respondDomainError(w, r, "cannot project order", err)
		return
	}

	aqm.Respond(w, http.StatusOK, result, nil)
}

func (h *Handler) SubmitItems(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SubmitItems")
	defer finish()

	orderID, ok := parseUUIDParam(w, r, "id", "Invalid order ID")
	if !ok {
		return
	}

	submitted, err := h.router.SubmitUnsubmittedItems(r.Context(), orderID)
	if err != nil {
		h.respondDomainError(w, r, "cannot submit items", err)
		return
	}

	aqm.Respond(w, http.StatusOK, map[string]interface{}{
		"submitted": submitted,
	}, nil)
}

func (h *Handler) RollupOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RollupOrder")
	defer finish()

	orderID, ok := parseUUIDParam(w, r, "id", "Invalid order ID")
	if !ok {
		return
	}

	advanced, err := h.router.RollupOrderStatusIfReady(r.Context(), orderID)
	if err != nil {
		h.respondDomainError(w, r, "cannot roll up order", err)
		return
	}

	aqm.Respond(w, http.StatusOK, map[string]interface{}{
		"advanced": advanced,
	}, nil)
}

type orderStateResponse struct {
	Order   *Order           `json:"order"`
	Items   []*OrderItem     `json:"items"`
	Tickets []*StationTicket `json:"tickets"`
	Reduced ReduceResult     `json:"reduced"`
}

// GetOrderState returns the projected order next to a fresh fold of its
// event log, which makes projection drift visible. It reads without the
// order lock.
func (h *Handler) GetOrderState(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetOrderState")
	defer finish()
	ctx := r.Context()

	orderID, ok := parseUUIDParam(w, r, "id", "Invalid order ID")
	if !ok {
		return
	}

	resp, err := h.orderState(ctx, orderID)
	if err != nil {
		h.respondDomainError(w, r, "cannot load order state", err)
		return
	}

	aqm.Respond(w, http.StatusOK, resp, nil)
}

func (h *Handler) orderState(ctx context.Context, orderID uuid.UUID) (*orderStateResponse, error) {
	if h.reader == nil {
		return nil, fmt.Errorf("order reader not configured")
	}

	o, err := h.reader.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	items, err := h.reader.ListItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	tickets, err := h.reader.ListTickets(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var reader EventReader = h.reader
	if h.events != nil {
		reader = h.events
	}
	evts, err := reader.EventsAfter(ctx, orderID, 0)
	if err != nil {
		return nil, err
	}

	return &orderStateResponse{
		Order:   o,
		Items:   items,
		Tickets: tickets,
		Reduced: Reduce(evts),
	}, nil
}

type ticketStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateTicketStatus(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateTicketStatus")
	defer finish()

	orderID, ok := parseUUIDParam(w, r, "id", "Invalid order ID")
	if !ok {
		return
	}
	ticketID, ok := parseUUIDParam(w, r, "ticketID", "Invalid ticket ID")
	if !ok {
		return
	}

	var req ticketStatusRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	if err != nil {
		aqm.RespondError(w, http.StatusBadRequest, "Could not read request body")
		return
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Status == "" {
		aqm.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ticket, err := h.router.UpdateTicketStatus(r.Context(), orderID, ticketID, req.Status)
	if err != nil {
		h.respondDomainError(w, r, "cannot update ticket status", err)
		return
	}

	aqm.Respond(w, http.StatusOK, ticket, nil)
}

func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		aqm.RespondError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, ErrTicketNotFound):
		aqm.RespondError(w, http.StatusNotFound, "Ticket not found")
	case errors.Is(err, ErrInvalidStatus):
		aqm.RespondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log(r).Errorf("%s: %v", msg, err)
		aqm.RespondError(w, http.StatusInternalServerError, "Internal error")
	}
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		aqm.RespondError(w, http.StatusBadRequest, msg)
		return uuid.Nil, false
	}
	return id, true
}
