// Package handler holds the echo handlers for the /api surface.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-marketplace/internal/lock"
	"github.com/iliyamo/ticketing-marketplace/internal/mail"
	"github.com/iliyamo/ticketing-marketplace/internal/middleware"
	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/payment"
	"github.com/iliyamo/ticketing-marketplace/internal/queue"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/service"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

const (
	dbTimeout    = 5 * time.Second
	moneyTimeout = 30 * time.Second
)

func reqCtx(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), d)
}

// fail maps a service or repository error onto a JSON error response.
// Unrecognised errors become 500 and are left on the context for the
// request logger.
func fail(c echo.Context, err error) error {
	var verr *service.ValidationError
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.As(err, &verr):
		status, msg = http.StatusBadRequest, verr.Msg
	case errors.Is(err, repository.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, repository.ErrForbidden), errors.Is(err, service.ErrRoleNotAllowed):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrInvalidState),
		errors.Is(err, repository.ErrEmailExists):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrNotesRequired), errors.Is(err, service.ErrNotEligible),
		errors.Is(err, service.ErrSoldOut), errors.Is(err, service.ErrBelowMinimum),
		errors.Is(err, service.ErrMediaLimit), errors.Is(err, repository.ErrInsufficientFunds),
		errors.Is(err, payment.ErrAccountNotFound):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, mail.ErrInvalidEmail), errors.Is(err, utils.ErrInvalidAmount):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, payment.ErrBadSignature):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, lock.ErrLocked):
		status, msg = http.StatusLocked, "request is being processed"
	case errors.Is(err, service.ErrTransferFailed), errors.Is(err, payment.ErrGatewayError),
		errors.Is(err, service.ErrAmountMismatch):
		status, msg = http.StatusBadGateway, err.Error()
	case errors.Is(err, payment.ErrGatewayUnavailable), errors.Is(err, queue.ErrNoBroker):
		status, msg = http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusGatewayTimeout, "request timed out"
	}
	if status >= 500 {
		c.Set(middleware.CtxError, err)
	}
	return c.JSON(status, echo.Map{"error": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// idParam parses a positive numeric path parameter.
func idParam(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func queryID(c echo.Context, name string) uint64 {
	id, _ := strconv.ParseUint(c.QueryParam(name), 10, 64)
	return id
}

func pageOf(c echo.Context) utils.Page {
	return utils.ParsePage(c.QueryParam("page"), c.QueryParam("page_size"))
}

func paged[T any](c echo.Context, pg utils.Page, items []T, total int64) error {
	if items == nil {
		items = []T{}
	}
	return c.JSON(http.StatusOK, model.Page[T]{Items: items, Page: pg.Page, PageSize: pg.PageSize, Total: total})
}

// notesReq is the body of every admin reject/dismiss action.
type notesReq struct {
	Notes string `json:"notes"`
}
