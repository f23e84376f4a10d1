package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/iliyamo/ticketing-marketplace/internal/logging"
)

func fakeBankAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/bank", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "NGN", r.URL.Query().Get("currency"))
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":[{"name":"Access Bank","code":"044"},{"name":"GTBank","code":"058"}]}`))
	})
	mux.HandleFunc("/bank/resolve", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("account_number") != "0123456789" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"status":false,"message":"Could not resolve account name"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":true,"data":{"account_number":"0123456789","account_name":"ADA LOVELACE"}}`))
	})
	mux.HandleFunc("/transferrecipient", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "nuban", body["type"])
		_, _ = w.Write([]byte(`{"status":true,"data":{"recipient_code":"RCP_1"}}`))
	})
	mux.HandleFunc("/transfer", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "RCP_1", body["recipient"])
		assert.Equal(t, float64(250000), body["amount"])
		_, _ = w.Write([]byte(`{"status":true,"data":{"transfer_code":"TRF_9","status":"pending"}}`))
	})
	mux.HandleFunc("/transfer/verify/", func(w http.ResponseWriter, r *http.Request) {
		switch strings.TrimPrefix(r.URL.Path, "/transfer/verify/") {
		case "po_1":
			_, _ = w.Write([]byte(`{"status":true,"data":{"transfer_code":"TRF_9","status":"success"}}`))
		case "po_bounced":
			_, _ = w.Write([]byte(`{"status":true,"data":{"transfer_code":"TRF_7","status":"reversed"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":false,"message":"Transfer not found"}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBankClientFlow(t *testing.T) {
	srv := fakeBankAPI(t)
	c := NewBankClient(srv.URL, "sk_test", "ngn", 2*time.Second, logging.Discard())
	ctx := context.Background()

	banks, err := c.ListBanks(ctx)
	require.NoError(t, err)
	require.Len(t, banks, 2)
	assert.Equal(t, "044", banks[0].Code)

	acct, err := c.ResolveAccount(ctx, "044", "0123456789")
	require.NoError(t, err)
	assert.Equal(t, "ADA LOVELACE", acct.AccountName)
	assert.Equal(t, "044", acct.BankCode)

	_, err = c.ResolveAccount(ctx, "044", "9999999999")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	tr, err := c.Transfer(ctx, acct, 250000, "po_1", "payout")
	require.NoError(t, err)
	assert.Equal(t, "TRF_9", tr.Code)
}

func TestBankClientVerifyTransfer(t *testing.T) {
	srv := fakeBankAPI(t)
	c := NewBankClient(srv.URL, "sk_test", "ngn", 2*time.Second, logging.Discard())
	ctx := context.Background()

	tr, err := c.VerifyTransfer(ctx, "po_1")
	require.NoError(t, err)
	assert.Equal(t, TransferSuccess, tr.Status)
	assert.False(t, tr.Failed())

	tr, err = c.VerifyTransfer(ctx, "po_bounced")
	require.NoError(t, err)
	assert.True(t, tr.Failed())

	_, err = c.VerifyTransfer(ctx, "po_unknown")
	assert.ErrorIs(t, err, ErrTransferNotFound)
}

func TestBankClientWithoutSecret(t *testing.T) {
	c := NewBankClient("http://127.0.0.1:1", "", "ngn", time.Second, logging.Discard())
	_, err := c.ListBanks(context.Background())
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestStripeWebhookVerification(t *testing.T) {
	g := NewStripeGateway("sk_test_x", "whsec_test", logging.Discard())
	require.NotNil(t, g)

	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","api_version":"2020-08-27",
		"data":{"object":{"id":"pi_1","object":"payment_intent","amount":150050,"status":"succeeded","metadata":{"reference":"dep_abc"}}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	ev, err := g.ParseWebhook(payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "payment_intent.succeeded", ev.Type)
	assert.Equal(t, "dep_abc", ev.Intent.Reference)
	assert.Equal(t, int64(150050), ev.Intent.AmountMinor)
	assert.Equal(t, IntentSucceeded, ev.Intent.Status)

	_, err = g.ParseWebhook(payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestDisabledGateway(t *testing.T) {
	assert.Nil(t, NewStripeGateway("", "", logging.Discard()))
	_, err := DisabledGateway{}.CreateDeposit(context.Background(), "r", 1, "ngn", 1)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}
