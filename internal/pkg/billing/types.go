package billing

import "time"

// NormalizedSubscription is the subscription state written onto the user.
type NormalizedSubscription struct {
	UserID            uint
	CustomerID        string
	SubscriptionID    string
	PriceID           string
	Interval          string
	Status            string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}
