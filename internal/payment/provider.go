package payment

import "context"

// EventType categorises provider webhook notifications after verification.
type EventType string

const (
	// EventSessionCompleted indicates a checkout session finished with a
	// successful payment.
	EventSessionCompleted EventType = "session_completed"
	// EventSessionExpired indicates the checkout session lapsed or failed.
	EventSessionExpired EventType = "session_expired"
	// EventIgnored covers event types the application does not act on.
	EventIgnored EventType = "ignored"
)

// Event is a provider webhook notification reduced to what the donation
// lifecycle needs. DonationID is the correlation id carried in the checkout
// session metadata.
type Event struct {
	Type       EventType
	SessionID  string
	DonationID string
}

// CheckoutInput describes the hosted checkout session to open.
type CheckoutInput struct {
	// DonationID is stored in session metadata so the asynchronous webhook
	// can be correlated back to its donation.
	DonationID string
	// Amount in the currency's minor unit.
	Amount      int64
	Currency    string
	DonorEmail  string
	Description string
	Recurring   bool
}

// CheckoutSession is the provider's reference for a hosted checkout.
type CheckoutSession struct {
	ID  string
	URL string
}

// Provider abstracts the payment provider: opening hosted checkout sessions
// and authenticating inbound webhooks.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, input CheckoutInput) (*CheckoutSession, error)
	// VerifyWebhook authenticates the raw payload against the provider
	// signature header and returns the decoded event. A bad signature is a
	// hard failure.
	VerifyWebhook(payload []byte, signature string) (*Event, error)
}
