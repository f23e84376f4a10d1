// Package payment wraps the external money rails: Stripe for card
// deposits and a Paystack-style bank API for withdrawals.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway not configured")
	ErrGatewayError       = errors.New("payment gateway error")
	ErrBadSignature       = errors.New("webhook signature verification failed")
)

// Intent statuses the deposit flow cares about.
const (
	IntentSucceeded = "succeeded"
	IntentFailed    = "failed"
	IntentPending   = "pending"
)

// Intent is the gateway-neutral view of a card payment.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountMinor  int64
	Reference    string
}

// WebhookEvent is a verified gateway callback.
type WebhookEvent struct {
	ID     string
	Type   string
	Intent Intent
}

// DepositGateway creates and inspects card deposits.
type DepositGateway interface {
	CreateDeposit(ctx context.Context, reference string, amountMinor int64, currency string, userID uint64) (Intent, error)
	GetDeposit(ctx context.Context, intentID string) (Intent, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}

// StripeGateway implements DepositGateway on Stripe PaymentIntents.
type StripeGateway struct {
	client        *client.API
	webhookSecret string
	log           logrus.FieldLogger
}

// NewStripeGateway returns nil when no secret key is configured; callers
// fall back to DisabledGateway.
func NewStripeGateway(secretKey, webhookSecret string, log logrus.FieldLogger) *StripeGateway {
	if secretKey == "" {
		return nil
	}
	return &StripeGateway{
		client:        client.New(secretKey, nil),
		webhookSecret: webhookSecret,
		log:           log.WithField("component", "stripe"),
	}
}

func (g *StripeGateway) CreateDeposit(ctx context.Context, reference string, amountMinor int64, currency string, userID uint64) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(amountMinor),
		Currency:    stripe.String(strings.ToLower(currency)),
		Description: stripe.String("Wallet deposit " + reference),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("reference", reference)
	params.AddMetadata("user_id", strconv.FormatUint(userID, 10))
	params.SetIdempotencyKey(reference)

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		g.log.WithError(err).WithField("reference", reference).Error("create payment intent failed")
		return Intent{}, fmt.Errorf("%w: %v", ErrGatewayError, err)
	}
	g.log.WithFields(logrus.Fields{"reference": reference, "intent": pi.ID}).Info("payment intent created")
	return fromStripe(pi), nil
}

func (g *StripeGateway) GetDeposit(ctx context.Context, intentID string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.client.PaymentIntents.Get(intentID, params)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrGatewayError, err)
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	out := WebhookEvent{ID: ev.ID, Type: string(ev.Type)}
	if strings.HasPrefix(out.Type, "payment_intent.") && ev.Data != nil {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return WebhookEvent{}, fmt.Errorf("decode payment intent: %w", err)
		}
		out.Intent = fromStripe(&pi)
	}
	return out, nil
}

func fromStripe(pi *stripe.PaymentIntent) Intent {
	in := Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Reference:    pi.Metadata["reference"],
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		in.Status = IntentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		in.Status = IntentFailed
	default:
		in.Status = IntentPending
	}
	return in
}

// DisabledGateway rejects every call; it is wired when Stripe is not
// configured so the rest of the API keeps working.
type DisabledGateway struct{}

func (DisabledGateway) CreateDeposit(context.Context, string, int64, string, uint64) (Intent, error) {
	return Intent{}, ErrGatewayUnavailable
}

func (DisabledGateway) GetDeposit(context.Context, string) (Intent, error) {
	return Intent{}, ErrGatewayUnavailable
}

func (DisabledGateway) ParseWebhook([]byte, string) (WebhookEvent, error) {
	return WebhookEvent{}, ErrGatewayUnavailable
}
