package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/GitDataEdit/app/models"
)

// ErrUnknownCustomer means a Stripe object could not be tied to a local user.
var ErrUnknownCustomer = errors.New("no user for stripe object")

// Service keeps the user's Stripe subscription fields in sync with webhooks.
type Service struct {
	repo Repository
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// HandleStripeEvent applies one verified webhook event. Unhandled event types
// are ignored.
func (s *Service) HandleStripeEvent(ctx context.Context, ev *StripeEvent) error {
	switch ev.Type {
	case EventCheckoutCompleted:
		session, err := ParseCheckoutSession(ev)
		if err != nil {
			return err
		}
		return s.LinkCheckout(ctx, session)
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		sub, err := ParseSubscription(ev)
		if err != nil {
			return err
		}
		if ev.Type == EventSubscriptionDeleted {
			sub.Status = "canceled"
		}
		return s.SyncSubscription(ctx, *sub)
	case EventInvoicePaymentSucceeded:
		sub, err := ParseInvoice(ev)
		if err != nil {
			return err
		}
		return s.SyncSubscription(ctx, *sub)
	default:
		fiberlog.Infof("[Billing] Ignoring Stripe event %s (%s)", ev.ID, ev.Type)
		return nil
	}
}

// LinkCheckout stores the customer and subscription ids of a completed checkout.
func (s *Service) LinkCheckout(ctx context.Context, session *CheckoutSession) error {
	userID := UserIDFromMetadata(session.Metadata, session.ClientReferenceID)
	if userID == 0 {
		return fmt.Errorf("%w: checkout session %s has no user reference", ErrUnknownCustomer, session.ID)
	}
	fields := map[string]interface{}{}
	if session.Customer != "" {
		fields["stripe_customer_id"] = session.Customer
	}
	if session.Subscription != "" {
		fields["stripe_subscription_id"] = session.Subscription
	}
	if len(fields) == 0 {
		return nil
	}
	return s.repo.UpdateUserStripeFields(ctx, userID, fields)
}

func (s *Service) resolveUser(ctx context.Context, in NormalizedSubscription) (uint, error) {
	if in.UserID != 0 {
		return in.UserID, nil
	}
	if in.SubscriptionID != "" {
		user, err := s.repo.FindUserByStripeSubscription(ctx, in.SubscriptionID)
		if err == nil {
			return user.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}
	if in.CustomerID != "" {
		user, err := s.repo.FindUserByStripeCustomer(ctx, in.CustomerID)
		if err == nil {
			return user.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("%w: subscription %s customer %s", ErrUnknownCustomer, in.SubscriptionID, in.CustomerID)
}

// SyncSubscription writes subscription state onto the owning user. An
// entitling status stores price and period end; any other status clears the
// price so the user falls back to the free plan.
func (s *Service) SyncSubscription(ctx context.Context, in NormalizedSubscription) error {
	userID, err := s.resolveUser(ctx, in)
	if err != nil {
		return err
	}

	fields := map[string]interface{}{}
	if in.CustomerID != "" {
		fields["stripe_customer_id"] = in.CustomerID
	}
	if in.SubscriptionID != "" {
		fields["stripe_subscription_id"] = in.SubscriptionID
	}
	if isEntitlingStatus(in.Status) {
		if in.PriceID != "" {
			fields["stripe_price_id"] = in.PriceID
		}
		if in.CurrentPeriodEnd != nil {
			fields["stripe_current_period_end"] = *in.CurrentPeriodEnd
		}
	} else {
		fields["stripe_price_id"] = ""
	}

	if err := s.repo.UpdateUserStripeFields(ctx, userID, fields); err != nil {
		return err
	}
	fiberlog.Infof("[Billing] Synced subscription %s for user %d (status=%s)", in.SubscriptionID, userID, in.Status)
	return nil
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}
