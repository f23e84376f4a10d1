package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-marketplace/internal/middleware"
	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/service"
)

// ModerationHandler serves content reports and user suspension.
type ModerationHandler struct {
	Reports *repository.ReportRepo
	Svc     *service.ModerationService
}

type reportReq struct {
	TargetType string `json:"target_type"`
	TargetID   uint64 `json:"target_id"`
	Reason     string `json:"reason"`
}

// Report files a report against a profile, event, review or media item.
func (h *ModerationHandler) Report(c echo.Context) error {
	var req reportReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	rp, err := h.Svc.Report(ctx, middleware.UserID(c), req.TargetType, req.TargetID, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, rp)
}

// List pages through reports, OPEN by default.
func (h *ModerationHandler) List(c echo.Context) error {
	status := strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))
	if status == "" {
		status = model.ReportOpen
	}
	pg := pageOf(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, total, err := h.Reports.List(ctx, status, pg)
	if err != nil {
		return fail(c, err)
	}
	return paged(c, pg, items, total)
}

type resolveReq struct {
	Action string `json:"action"`
	Notes  string `json:"notes"`
}

// Resolve closes a report and applies its action.
func (h *ModerationHandler) Resolve(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req resolveReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	action := strings.ToUpper(strings.TrimSpace(req.Action))
	if action == "" {
		action = model.ActionNone
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	if err := h.Svc.Resolve(ctx, middleware.UserID(c), id, action, req.Notes); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "status": model.ReportResolved, "action": action})
}

// Dismiss closes a report without action.
func (h *ModerationHandler) Dismiss(c echo.Context) error {
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

	if err := h.Svc.Dismiss(ctx, middleware.UserID(c), id, req.Notes); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "status": model.ReportDismissed})
}

func (h *ModerationHandler) Suspend(c echo.Context) error   { return h.setActive(c, false) }
func (h *ModerationHandler) Reinstate(c echo.Context) error { return h.setActive(c, true) }

func (h *ModerationHandler) setActive(c echo.Context, active bool) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	if err := h.Svc.SetUserActive(ctx, middleware.UserID(c), id, active); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "is_active": active})
}
