package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GitDataEdit/app/models"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/billing"
)

// BillingController receives Stripe webhooks.
type BillingController struct {
	service       *billing.Service
	webhookSecret string
	Now           func() time.Time
}

func NewBillingController(service *billing.Service, webhookSecret string) *BillingController {
	return &BillingController{service: service, webhookSecret: webhookSecret, Now: time.Now}
}

// HandleStripeWebhook verifies, records and applies one Stripe event.
// Deliveries already seen are acknowledged without reprocessing.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sigErr := billing.VerifyStripeWebhookSignature(rawBody, c.Get("Stripe-Signature"), bc.webhookSecret, bc.Now(), billing.DefaultSignatureTolerance)
	if bc.webhookSecret == "" {
		sigErr = errors.New("STRIPE_WEBHOOK_SECRET is not configured")
	}

	event, parseErr := billing.ParseStripeEvent(rawBody)
	in := billing.WebhookEventInput{
		Provider:       models.BillingProviderStripe,
		PayloadJSON:    string(rawBody),
		SignatureValid: sigErr == nil,
	}
	// unverified payloads are keyed by hash so they cannot claim a real event id
	if parseErr == nil && sigErr == nil {
		in.ProviderEventID = event.ID
		in.EventType = event.Type
	}

	created, stored, err := bc.service.RecordWebhookEvent(ctx, in)
	if err != nil {
		fiberlog.Errorf("[Billing] Persisting webhook failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		return c.JSON(fiber.Map{"received": true, "duplicate": true})
	}
	if sigErr != nil {
		fiberlog.Warnf("[Billing] Rejected Stripe webhook: %v", sigErr)
		_ = bc.service.MarkWebhookProcessed(ctx, stored.ID, sigErr)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}
	if parseErr != nil {
		_ = bc.service.MarkWebhookProcessed(ctx, stored.ID, parseErr)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	handleErr := bc.service.HandleStripeEvent(ctx, event)
	_ = bc.service.MarkWebhookProcessed(ctx, stored.ID, handleErr)
	switch {
	case handleErr == nil:
	case errors.Is(handleErr, billing.ErrUnknownCustomer):
		// acknowledged; redelivery cannot succeed
		fiberlog.Warnf("[Billing] Stripe event %s: %v", event.ID, handleErr)
	default:
		fiberlog.Errorf("[Billing] Stripe event %s failed: %v", event.ID, handleErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_handler_failed"})
	}
	return c.JSON(fiber.Map{"received": true})
}

var billingController *BillingController

func InitializeBillingController(bc *BillingController) {
	billingController = bc
}

func GetBillingController() *BillingController {
	return billingController
}
