package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-marketplace/internal/middleware"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/service"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// BookingHandler serves artist and provider bookings.
type BookingHandler struct {
	Bookings *repository.BookingRepo
	Svc      *service.BookingService
}

type bookingReq struct {
	ProviderID  uint64       `json:"provider_id"`
	EventID     *uint64      `json:"event_id"`
	ServiceDate time.Time    `json:"service_date"`
	Fee         utils.Amount `json:"fee"`
	Message     string       `json:"message"`
}

func (h *BookingHandler) Create(c echo.Context) error {
	var req bookingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	fee, err := priceMinor(req.Fee)
	if err != nil {
		return badRequest(c, "invalid fee")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	b, err := h.Svc.Create(ctx, middleware.UserID(c), middleware.Role(c), service.BookingInput{
		ProviderID:  req.ProviderID,
		EventID:     req.EventID,
		ServiceDate: req.ServiceDate.UTC(),
		FeeMinor:    fee,
		Message:     req.Message,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// List pages through the caller's bookings, as organizer by default or as
// provider with ?as=provider.
func (h *BookingHandler) List(c echo.Context) error {
	as := strings.ToLower(c.QueryParam("as"))
	if as != "" && as != "organizer" && as != "provider" {
		return badRequest(c, "as must be organizer or provider")
	}
	pg := pageOf(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, total, err := h.Bookings.List(ctx, middleware.UserID(c), as, strings.ToUpper(c.QueryParam("status")), pg)
	if err != nil {
		return fail(c, err)
	}
	return paged(c, pg, items, total)
}

// Get returns a booking to one of its participants.
func (h *BookingHandler) Get(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	b, err := h.Bookings.GetByID(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	if uid := middleware.UserID(c); b.OrganizerID != uid && b.ProviderID != uid {
		return fail(c, repository.ErrForbidden)
	}
	return c.JSON(http.StatusOK, b)
}

// Transition applies accept, decline, cancel or complete.
func (h *BookingHandler) Transition(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c, moneyTimeout)
	defer cancel()

	b, err := h.Svc.Transition(ctx, middleware.UserID(c), id, strings.ToLower(c.Param("action")))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}
