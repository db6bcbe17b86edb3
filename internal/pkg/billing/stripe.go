package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
)

// StripeEvent is the envelope of a Stripe webhook delivery.
type StripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripePrice struct {
	ID        string `json:"id"`
	Recurring *struct {
		Interval string `json:"interval"`
	} `json:"recurring"`
}

// CheckoutSession is the part of a completed checkout we act on.
type CheckoutSession struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			Price            stripePrice `json:"price"`
			CurrentPeriodEnd int64       `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

type stripeInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Lines        struct {
		Data []struct {
			Price  *stripePrice `json:"price"`
			Period struct {
				End int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

func ParseStripeEvent(payload []byte) (*StripeEvent, error) {
	var ev StripeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ev.Type) == "" {
		return nil, errors.New("stripe event payload missing type")
	}
	return &ev, nil
}

// UserIDFromMetadata reads the application user id put on checkout sessions
// and subscriptions as metadata.userId.
func UserIDFromMetadata(metadata map[string]string, fallback string) uint {
	raw := strings.TrimSpace(metadata["userId"])
	if raw == "" {
		raw = strings.TrimSpace(fallback)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func ParseCheckoutSession(ev *StripeEvent) (*CheckoutSession, error) {
	var s CheckoutSession
	if err := json.Unmarshal(ev.Data.Object, &s); err != nil {
		return nil, fmt.Errorf("failed to parse checkout session: %w", err)
	}
	return &s, nil
}

// ParseSubscription converts a subscription object into the normalized shape.
// UserID is taken from metadata and may be zero.
func ParseSubscription(ev *StripeEvent) (*NormalizedSubscription, error) {
	var s stripeSubscription
	if err := json.Unmarshal(ev.Data.Object, &s); err != nil {
		return nil, fmt.Errorf("failed to parse subscription: %w", err)
	}
	if s.ID == "" {
		return nil, errors.New("stripe subscription payload missing id")
	}

	out := &NormalizedSubscription{
		UserID:            UserIDFromMetadata(s.Metadata, ""),
		CustomerID:        s.Customer,
		SubscriptionID:    s.ID,
		Status:            s.Status,
		CurrentPeriodEnd:  unixTime(s.CurrentPeriodEnd),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.PriceID = item.Price.ID
		if item.Price.Recurring != nil {
			out.Interval = normalizeInterval(item.Price.Recurring.Interval)
		}
		// newer API versions report the period per item
		if out.CurrentPeriodEnd == nil {
			out.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
		}
	}
	return out, nil
}

// ParseInvoice returns the renewed subscription state of a paid invoice.
// Status is always "active".
func ParseInvoice(ev *StripeEvent) (*NormalizedSubscription, error) {
	var inv stripeInvoice
	if err := json.Unmarshal(ev.Data.Object, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse invoice: %w", err)
	}
	if inv.Subscription == "" {
		return nil, errors.New("invoice is not tied to a subscription")
	}

	out := &NormalizedSubscription{
		CustomerID:     inv.Customer,
		SubscriptionID: inv.Subscription,
		Status:         "active",
	}
	for _, line := range inv.Lines.Data {
		if end := unixTime(line.Period.End); end != nil && (out.CurrentPeriodEnd == nil || end.After(*out.CurrentPeriodEnd)) {
			out.CurrentPeriodEnd = end
		}
		if out.PriceID == "" && line.Price != nil {
			out.PriceID = line.Price.ID
		}
	}
	return out, nil
}
