package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-marketplace/internal/middleware"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/service"
)

// ConversationHandler serves direct messaging between users.
type ConversationHandler struct {
	Conversations *repository.ConversationRepo
	Svc           *service.ConversationService
}

type startReq struct {
	ParticipantID uint64  `json:"participant_id"`
	BookingID     *uint64 `json:"booking_id"`
	Message       string  `json:"message"`
}

// Start answers 201 with a new conversation or 200 with the existing one.
func (h *ConversationHandler) Start(c echo.Context) error {
	var req startReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	conv, created, err := h.Svc.Start(ctx, middleware.UserID(c), req.ParticipantID, req.BookingID, req.Message)
	if err != nil {
		return fail(c, err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, conv)
}

func (h *ConversationHandler) List(c echo.Context) error {
	pg := pageOf(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, total, err := h.Conversations.ListForUser(ctx, middleware.UserID(c), pg)
	if err != nil {
		return fail(c, err)
	}
	return paged(c, pg, items, total)
}

func (h *ConversationHandler) Messages(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	pg := pageOf(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, total, err := h.Svc.Messages(ctx, middleware.UserID(c), id, pg)
	if err != nil {
		return fail(c, err)
	}
	return paged(c, pg, items, total)
}

type messageReq struct {
	Body string `json:"body"`
}

func (h *ConversationHandler) Send(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req messageReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	m, err := h.Svc.Send(ctx, middleware.UserID(c), id, req.Body)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *ConversationHandler) MarkRead(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	if err := h.Svc.MarkRead(ctx, middleware.UserID(c), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
