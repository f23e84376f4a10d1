package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-marketplace/internal/middleware"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/service"
)

// RefundHandler serves ticket refund requests.
type RefundHandler struct {
	Refunds *repository.RefundRepo
	Svc     *service.RefundService
}

type refundReq struct {
	TicketID uint64 `json:"ticket_id"`
	Reason   string `json:"reason"`
}

func (h *RefundHandler) Create(c echo.Context) error {
	var req refundReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.TicketID == 0 {
		return badRequest(c, "ticket_id is required")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	rr, err := h.Svc.Request(ctx, middleware.UserID(c), req.TicketID, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, rr)
}

func (h *RefundHandler) Mine(c echo.Context) error {
	return h.list(c, middleware.UserID(c))
}

func (h *RefundHandler) ListAdmin(c echo.Context) error {
	return h.list(c, 0)
}

func (h *RefundHandler) list(c echo.Context, userID uint64) error {
	pg := pageOf(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, total, err := h.Refunds.List(ctx, userID, strings.ToUpper(c.QueryParam("status")), pg)
	if err != nil {
		return fail(c, err)
	}
	return paged(c, pg, items, total)
}

func (h *RefundHandler) Approve(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c, moneyTimeout)
	defer cancel()

	rr, err := h.Svc.Approve(ctx, middleware.UserID(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, rr)
}

func (h *RefundHandler) Reject(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req notesReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c, moneyTimeout)
	defer cancel()

	rr, err := h.Svc.Reject(ctx, middleware.UserID(c), id, req.Notes)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, rr)
}
