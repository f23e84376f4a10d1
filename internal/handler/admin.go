package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-marketplace/internal/middleware"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/service"
)

// AdminHandler serves the dashboard, the audit trail and admin email.
type AdminHandler struct {
	Svc   *service.AdminService
	Audit *repository.AuditRepo
}

func (h *AdminHandler) Stats(c echo.Context) error {
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	st, err := h.Svc.Stats(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// AuditLogs pages through admin actions, optionally for one entity type.
func (h *AdminHandler) AuditLogs(c echo.Context) error {
	pg := pageOf(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, total, err := h.Audit.List(ctx, strings.TrimSpace(c.QueryParam("entity")), pg)
	if err != nil {
		return fail(c, err)
	}
	return paged(c, pg, items, total)
}

type emailReq struct {
	To      string `json:"to"`
	UserID  uint64 `json:"user_id"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// SendEmail accepts an email for delivery and answers 202.  queued tells
// whether it went through the broker or was sent directly.
func (h *AdminHandler) SendEmail(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c, moneyTimeout)
	defer cancel()

	queued, err := h.Svc.SendEmail(ctx, middleware.UserID(c), service.AdminEmail{
		To:      req.To,
		UserID:  req.UserID,
		Subject: req.Subject,
		HTML:    req.HTML,
		Text:    req.Text,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"accepted": true, "queued": queued})
}
