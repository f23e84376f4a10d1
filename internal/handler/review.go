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

// ReviewHandler serves profile and event reviews.
type ReviewHandler struct {
	Reviews *repository.ReviewRepo
	Svc     *service.ReviewService
}

type reviewReq struct {
	SubjectType string  `json:"subject_type"`
	SubjectID   uint64  `json:"subject_id"`
	Rating      int     `json:"rating"`
	Comment     string  `json:"comment"`
	BookingID   *uint64 `json:"booking_id"`
}

func (h *ReviewHandler) Create(c echo.Context) error {
	var req reviewReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	rv, err := h.Svc.Create(ctx, middleware.UserID(c), service.ReviewInput{
		SubjectType: req.SubjectType,
		SubjectID:   req.SubjectID,
		BookingID:   req.BookingID,
		Rating:      req.Rating,
		Comment:     req.Comment,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, rv)
}

type reviewPage struct {
	Items    []model.Review      `json:"items"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
	Total    int64               `json:"total"`
	Summary  model.RatingSummary `json:"summary"`
}

// List pages through the visible reviews of one subject with its rating
// summary.
func (h *ReviewHandler) List(c echo.Context) error {
	st := strings.ToUpper(strings.TrimSpace(c.QueryParam("subject_type")))
	if st != model.SubjectProfile && st != model.SubjectEvent {
		return badRequest(c, "subject_type must be PROFILE or EVENT")
	}
	sid := queryID(c, "subject_id")
	if sid == 0 {
		return badRequest(c, "subject_id is required")
	}
	pg := pageOf(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, total, err := h.Reviews.ListVisible(ctx, st, sid, pg)
	if err != nil {
		return fail(c, err)
	}
	sum, err := h.Reviews.Summary(ctx, st, sid)
	if err != nil {
		return fail(c, err)
	}
	if items == nil {
		items = []model.Review{}
	}
	return c.JSON(http.StatusOK, reviewPage{Items: items, Page: pg.Page, PageSize: pg.PageSize, Total: total, Summary: sum})
}

func (h *ReviewHandler) Hide(c echo.Context) error   { return h.setHidden(c, true) }
func (h *ReviewHandler) Unhide(c echo.Context) error { return h.setHidden(c, false) }

func (h *ReviewHandler) setHidden(c echo.Context, hidden bool) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	if err := h.Svc.SetHidden(ctx, middleware.UserID(c), id, hidden); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "is_hidden": hidden})
}
