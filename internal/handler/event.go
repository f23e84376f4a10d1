package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticketing-marketplace/internal/middleware"
	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/service"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// EventHandler serves the event catalogue, organizer event management,
// event moderation and ticket sales.
type EventHandler struct {
	Svc     *service.EventService
	Events  *repository.EventRepo
	Tickets *repository.TicketRepo
	Sales   *service.TicketService
}

type eventReq struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Venue       string       `json:"venue"`
	City        string       `json:"city"`
	StartsAt    time.Time    `json:"starts_at"`
	EndsAt      time.Time    `json:"ends_at"`
	Capacity    uint32       `json:"capacity"`
	TicketPrice utils.Amount `json:"ticket_price"`
}

// priceMinor accepts zero for free events on top of the usual amount rules.
func priceMinor(a utils.Amount) (int64, error) {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return 0, nil
	}
	if d, err := decimal.NewFromString(s); err == nil && d.IsZero() {
		return 0, nil
	}
	return a.Minor()
}

func (r eventReq) input() (model.EventInput, error) {
	price, err := priceMinor(r.TicketPrice)
	if err != nil {
		return model.EventInput{}, err
	}
	return model.EventInput{
		Title:            r.Title,
		Description:      r.Description,
		Venue:            r.Venue,
		City:             r.City,
		StartsAt:         r.StartsAt.UTC(),
		EndsAt:           r.EndsAt.UTC(),
		Capacity:         r.Capacity,
		TicketPriceMinor: price,
	}, nil
}

// ListPublic pages through published upcoming events.
func (h *EventHandler) ListPublic(c echo.Context) error {
	pg := pageOf(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, total, err := h.Events.List(ctx, model.EventFilter{
		Status:       model.EventPublished,
		Query:        c.QueryParam("q"),
		City:         c.QueryParam("city"),
		UpcomingOnly: true,
	}, pg)
	if err != nil {
		return fail(c, err)
	}
	return paged(c, pg, items, total)
}

// Get returns one event if the caller may see it.
func (h *EventHandler) Get(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	ev, err := h.Svc.Visible(ctx, middleware.UserID(c), middleware.Role(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// ----- organizer -----

func (h *EventHandler) Create(c echo.Context) error {
	var req eventReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	in, err := req.input()
	if err != nil {
		return badRequest(c, "invalid ticket_price")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	ev, err := h.Svc.Create(ctx, middleware.UserID(c), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, ev)
}

// Update edits a DRAFT or REJECTED event.
func (h *EventHandler) Update(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req eventReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	in, err := req.input()
	if err != nil {
		return badRequest(c, "invalid ticket_price")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	ev, err := h.Svc.Update(ctx, middleware.UserID(c), id, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

func (h *EventHandler) Submit(c echo.Context) error {
	return h.organizerAction(c, h.Svc.Submit)
}

func (h *EventHandler) Cancel(c echo.Context) error {
	return h.organizerAction(c, h.Svc.Cancel)
}

func (h *EventHandler) organizerAction(c echo.Context, fn func(ctx context.Context, organizerID, id uint64) (model.Event, error)) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	ev, err := fn(ctx, middleware.UserID(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// ListMine pages through the caller's own events in any status.
func (h *EventHandler) ListMine(c echo.Context) error {
	pg := pageOf(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, total, err := h.Events.List(ctx, model.EventFilter{
		OrganizerID: middleware.UserID(c),
		Status:      strings.ToUpper(c.QueryParam("status")),
	}, pg)
	if err != nil {
		return fail(c, err)
	}
	return paged(c, pg, items, total)
}

// ----- admin -----

// ListAdmin pages through events by status, PENDING_REVIEW by default.
func (h *EventHandler) ListAdmin(c echo.Context) error {
	status := strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))
	if status == "" {
		status = model.EventPendingReview
	}
	pg := pageOf(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, total, err := h.Events.List(ctx, model.EventFilter{Status: status, Query: c.QueryParam("q")}, pg)
	if err != nil {
		return fail(c, err)
	}
	return paged(c, pg, items, total)
}

func (h *EventHandler) Approve(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	ev, err := h.Svc.Approve(ctx, middleware.UserID(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// Reject sends an event back to its organizer with notes.
func (h *EventHandler) Reject(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req notesReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	ev, err := h.Svc.Reject(ctx, middleware.UserID(c), id, req.Notes)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}

// ----- tickets -----

type buyReq struct {
	Quantity int `json:"quantity"`
}

// Buy purchases tickets for an event with the caller's wallet.
func (h *EventHandler) Buy(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req buyReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c, moneyTimeout)
	defer cancel()

	p, err := h.Sales.Buy(ctx, middleware.UserID(c), id, req.Quantity)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// MyTickets pages through the caller's tickets.
func (h *EventHandler) MyTickets(c echo.Context) error {
	pg := pageOf(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, total, err := h.Tickets.ListByOwner(ctx, middleware.UserID(c), pg)
	if err != nil {
		return fail(c, err)
	}
	return paged(c, pg, items, total)
}

// EventTickets lists the tickets sold for an event to its organizer or an
// admin.
func (h *EventHandler) EventTickets(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	pg := pageOf(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	ev, err := h.Events.GetByID(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	if ev.OrganizerID != middleware.UserID(c) && middleware.Role(c) != model.RoleAdmin {
		return fail(c, repository.ErrForbidden)
	}
	items, total, err := h.Tickets.ListByEvent(ctx, id, pg)
	if err != nil {
		return fail(c, err)
	}
	return paged(c, pg, items, total)
}
