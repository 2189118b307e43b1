package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

const defaultCheckoutTimeout = 10 * time.Second

// StripeConfig carries the credentials and checkout settings for the Stripe
// provider. Both secrets must be injected per environment; they are never
// defaulted.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
	Timeout       time.Duration
}

// StripeProvider implements Provider on top of Stripe Checkout.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	currency      string
	successURL    string
	cancelURL     string
	timeout       time.Duration
}

// NewStripeProvider validates the configuration and builds a StripeProvider.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("stripe: api key is required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe: webhook signing secret is required")
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "pkr"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCheckoutTimeout
	}

	api := &client.API{}
	api.Init(cfg.APIKey, nil)

	return &StripeProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		currency:      currency,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		timeout:       timeout,
	}, nil
}

// CreateCheckoutSession opens a hosted checkout session tagged with the
// donation's correlation id.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, input CheckoutInput) (*CheckoutSession, error) {
	if input.DonationID == "" {
		return nil, errors.New("stripe: donation id is required")
	}
	if input.Amount <= 0 {
		return nil, errors.New("stripe: amount must be positive")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	mode := stripe.CheckoutSessionModePayment
	if input.Recurring {
		mode = stripe.CheckoutSessionModeSubscription
	}

	description := input.Description
	if description == "" {
		description = "Flood relief donation"
	}

	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
		Mode:   stripe.String(string(mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(p.currency),
					UnitAmount: stripe.Int64(input.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail: stripe.String(input.DonorEmail),
		SuccessURL:    stripe.String(p.successURL),
		CancelURL:     stripe.String(p.cancelURL),
		Metadata: map[string]string{
			"donation_id": input.DonationID,
		},
	}

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// VerifyWebhook authenticates the payload signature and reduces the Stripe
// event to the application's event model.
func (p *StripeProvider) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("stripe: verify webhook signature: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed":
		return reduceSessionEvent(event, EventSessionCompleted)
	case "checkout.session.expired":
		return reduceSessionEvent(event, EventSessionExpired)
	default:
		return &Event{Type: EventIgnored}, nil
	}
}

func reduceSessionEvent(event stripe.Event, eventType EventType) (*Event, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("stripe: decode session payload: %w", err)
	}

	return &Event{
		Type:       eventType,
		SessionID:  session.ID,
		DonationID: session.Metadata["donation_id"],
	}, nil
}
