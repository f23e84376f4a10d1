package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-marketplace/internal/middleware"
	"github.com/iliyamo/ticketing-marketplace/internal/model"
	"github.com/iliyamo/ticketing-marketplace/internal/repository"
	"github.com/iliyamo/ticketing-marketplace/internal/service"
	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

const maxWebhookBody = 64 << 10

// WalletHandler serves balances, the ledger, deposits and withdrawals.
type WalletHandler struct {
	Wallets  *repository.WalletRepo
	Deposits *service.WalletService
	Payouts  *service.PayoutService
}

type walletResp struct {
	model.Wallet
	AvailableMinor int64  `json:"available_minor"`
	Balance        string `json:"balance"`
	Available      string `json:"available"`
}

// Get returns the caller's balance, held amount and available amount.
func (h *WalletHandler) Get(c echo.Context) error {
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	w, err := h.Wallets.Get(ctx, middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, walletResp{
		Wallet:         w,
		AvailableMinor: w.Available(),
		Balance:        utils.FormatAmount(w.BalanceMinor),
		Available:      utils.FormatAmount(w.Available()),
	})
}

// Transactions pages through the caller's ledger, optionally by type.
func (h *WalletHandler) Transactions(c echo.Context) error {
	pg := pageOf(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, total, err := h.Wallets.ListTransactions(ctx, middleware.UserID(c),
		strings.ToUpper(strings.TrimSpace(c.QueryParam("type"))), pg)
	if err != nil {
		return fail(c, err)
	}
	return paged(c, pg, items, total)
}

type depositReq struct {
	Amount utils.Amount `json:"amount"`
}

// Deposit starts a card deposit and returns the client secret the
// frontend confirms the payment with.
func (h *WalletHandler) Deposit(c echo.Context) error {
	var req depositReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	amount, err := req.Amount.Minor()
	if err != nil {
		return badRequest(c, "amount must be a positive number with at most 2 decimals")
	}
	ctx, cancel := reqCtx(c, moneyTimeout)
	defer cancel()

	res, err := h.Deposits.StartDeposit(ctx, middleware.UserID(c), amount)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Webhook receives signed gateway callbacks.  Anything but a bad signature
// that fails is answered with 500 so the gateway retries.
func (h *WalletHandler) Webhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	ctx, cancel := reqCtx(c, moneyTimeout)
	defer cancel()

	if err := h.Deposits.HandleWebhook(ctx, payload, c.Request().Header.Get("Stripe-Signature")); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

// DepositStatus reconciles one of the caller's deposits with the gateway.
func (h *WalletHandler) DepositStatus(c echo.Context) error {
	ref := strings.TrimSpace(c.Param("reference"))
	if ref == "" {
		return badRequest(c, "reference required")
	}
	ctx, cancel := reqCtx(c, moneyTimeout)
	defer cancel()

	line, err := h.Deposits.Reconcile(ctx, middleware.UserID(c), ref)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, line)
}

// Banks lists the banks withdrawals can be sent to.
func (h *WalletHandler) Banks(c echo.Context) error {
	ctx, cancel := reqCtx(c, moneyTimeout)
	defer cancel()

	banks, err := h.Payouts.Banks(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": banks})
}

type accountReq struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
}

// VerifyAccount resolves the holder name of a bank account.
func (h *WalletHandler) VerifyAccount(c echo.Context) error {
	var req accountReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := reqCtx(c, moneyTimeout)
	defer cancel()

	acct, err := h.Payouts.VerifyAccount(ctx, req.BankCode, req.AccountNumber)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, acct)
}

type withdrawReq struct {
	Amount        utils.Amount `json:"amount"`
	BankCode      string       `json:"bank_code"`
	AccountNumber string       `json:"account_number"`
}

// Withdraw holds funds and files a payout request for admin approval.
func (h *WalletHandler) Withdraw(c echo.Context) error {
	var req withdrawReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	amount, err := req.Amount.Minor()
	if err != nil {
		return badRequest(c, "amount must be a positive number with at most 2 decimals")
	}
	ctx, cancel := reqCtx(c, moneyTimeout)
	defer cancel()

	p, err := h.Payouts.RequestWithdrawal(ctx, middleware.UserID(c), middleware.Role(c), amount, req.BankCode, req.AccountNumber)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// ----- payouts -----

// PayoutHandler lists and processes payout requests.
type PayoutHandler struct {
	Payouts *repository.PayoutRepo
	Svc     *service.PayoutService
}

// Mine pages through the caller's payout requests.
func (h *PayoutHandler) Mine(c echo.Context) error {
	return h.list(c, middleware.UserID(c))
}

// ListAdmin pages through all payout requests, filtered by status.
func (h *PayoutHandler) ListAdmin(c echo.Context) error {
	return h.list(c, 0)
}

func (h *PayoutHandler) list(c echo.Context, userID uint64) error {
	pg := pageOf(c)
	ctx, cancel := reqCtx(c, dbTimeout)
	defer cancel()

	items, total, err := h.Payouts.List(ctx, userID, strings.ToUpper(c.QueryParam("status")), pg)
	if err != nil {
		return fail(c, err)
	}
	return paged(c, pg, items, total)
}

// Approve debits the held funds and sends the bank transfer.  A failed
// transfer answers 502 with the FAILED payout; the funds are back in the
// user's wallet by then.
func (h *PayoutHandler) Approve(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := reqCtx(c, moneyTimeout)
	defer cancel()

	p, err := h.Svc.Approve(ctx, middleware.UserID(c), id)
	if errors.Is(err, service.ErrTransferFailed) {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": err.Error(), "payout": p})
	}
	if errors.Is(err, service.ErrTransferUnsure) {
		return c.JSON(http.StatusAccepted, echo.Map{"error": err.Error(), "payout": p})
	}
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Reject releases the held funds.  Notes are required.
func (h *PayoutHandler) Reject(c echo.Context) error {
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

	p, err := h.Svc.Reject(ctx, middleware.UserID(c), id, req.Notes)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
