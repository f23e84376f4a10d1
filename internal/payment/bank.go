package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrAccountNotFound is returned when the provider cannot resolve an
// account number at the given bank.
var ErrAccountNotFound = errors.New("bank account could not be resolved")

// ErrTransferNotFound is returned by VerifyTransfer when the provider has
// no transfer for the reference.
var ErrTransferNotFound = errors.New("transfer not found")

// Provider transfer states.
const (
	TransferPending  = "pending"
	TransferSuccess  = "success"
	TransferFailed   = "failed"
	TransferReversed = "reversed"
)

// Bank is one entry of the provider's bank list.
type Bank struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Slug string `json:"slug,omitempty"`
}

// Account is a resolved bank account.
type Account struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankCode      string `json:"bank_code"`
}

// Transfer is the provider's acknowledgement of a payout.
type Transfer struct {
	Code   string
	Status string
}

// Failed reports whether the provider gave up on the transfer.
func (t Transfer) Failed() bool {
	return t.Status == TransferFailed || t.Status == TransferReversed
}

// BankProvider lists banks, resolves accounts and sends transfers.
type BankProvider interface {
	ListBanks(ctx context.Context) ([]Bank, error)
	ResolveAccount(ctx context.Context, bankCode, accountNumber string) (Account, error)
	Transfer(ctx context.Context, acct Account, amountMinor int64, reference, reason string) (Transfer, error)
	VerifyTransfer(ctx context.Context, reference string) (Transfer, error)
}

// BankClient talks to a Paystack-compatible REST API.
type BankClient struct {
	baseURL  string
	secret   string
	currency string
	http     *http.Client
	log      logrus.FieldLogger
}

func NewBankClient(baseURL, secret, currency string, timeout time.Duration, log logrus.FieldLogger) *BankClient {
	return &BankClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		secret:   secret,
		currency: strings.ToUpper(currency),
		http:     &http.Client{Timeout: timeout},
		log:      log.WithField("component", "bank"),
	}
}

// envelope is the provider's common response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *BankClient) do(ctx context.Context, method, path string, body any, out any) error {
	if c.secret == "" {
		return ErrGatewayUnavailable
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/transfer/verify/") {
		return ErrTransferNotFound
	}
	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&env); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrGatewayError, path, err)
	}
	if resp.StatusCode == http.StatusUnprocessableEntity || (resp.StatusCode == http.StatusBadRequest && strings.HasPrefix(path, "/bank/resolve")) {
		return ErrAccountNotFound
	}
	if resp.StatusCode >= 300 || !env.Status {
		c.log.WithFields(logrus.Fields{"path": path, "status": resp.StatusCode, "message": env.Message}).Warn("bank api call failed")
		return fmt.Errorf("%w: %s", ErrGatewayError, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: decode data: %v", ErrGatewayError, err)
		}
	}
	return nil
}

func (c *BankClient) ListBanks(ctx context.Context) ([]Bank, error) {
	var banks []Bank
	if err := c.do(ctx, http.MethodGet, "/bank?currency="+url.QueryEscape(c.currency), nil, &banks); err != nil {
		return nil, err
	}
	return banks, nil
}

func (c *BankClient) ResolveAccount(ctx context.Context, bankCode, accountNumber string) (Account, error) {
	q := url.Values{"account_number": {accountNumber}, "bank_code": {bankCode}}
	var acct Account
	if err := c.do(ctx, http.MethodGet, "/bank/resolve?"+q.Encode(), nil, &acct); err != nil {
		return Account{}, err
	}
	if acct.AccountName == "" {
		return Account{}, ErrAccountNotFound
	}
	acct.BankCode = bankCode
	return acct, nil
}

// Transfer creates a transfer recipient and then the transfer itself.  The
// payout reference doubles as the provider's idempotency reference.
func (c *BankClient) Transfer(ctx context.Context, acct Account, amountMinor int64, reference, reason string) (Transfer, error) {
	var recipient struct {
		RecipientCode string `json:"recipient_code"`
	}
	err := c.do(ctx, http.MethodPost, "/transferrecipient", map[string]any{
		"type":           "nuban",
		"name":           acct.AccountName,
		"account_number": acct.AccountNumber,
		"bank_code":      acct.BankCode,
		"currency":       c.currency,
	}, &recipient)
	if err != nil {
		return Transfer{}, err
	}
	var tr struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}
	err = c.do(ctx, http.MethodPost, "/transfer", map[string]any{
		"source":    "balance",
		"amount":    amountMinor,
		"recipient": recipient.RecipientCode,
		"reference": reference,
		"reason":    reason,
	}, &tr)
	if err != nil {
		return Transfer{}, err
	}
	c.log.WithFields(logrus.Fields{"reference": reference, "transfer": tr.TransferCode, "status": tr.Status}).Info("transfer initiated")
	return Transfer{Code: tr.TransferCode, Status: tr.Status}, nil
}

// VerifyTransfer looks a transfer up by the payout reference it was sent
// with.
func (c *BankClient) VerifyTransfer(ctx context.Context, reference string) (Transfer, error) {
	var tr struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/transfer/verify/"+url.PathEscape(reference), nil, &tr); err != nil {
		return Transfer{}, err
	}
	return Transfer{Code: tr.TransferCode, Status: strings.ToLower(tr.Status)}, nil
}
