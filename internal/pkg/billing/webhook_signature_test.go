package billing

import (
	"errors"
	"testing"
	"time"
)

func TestVerifyStripeWebhookSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)

	header := SignStripePayload(payload, secret, now)
	if err := VerifyStripeWebhookSignature(payload, header, secret, now.Add(time.Minute), DefaultSignatureTolerance); err != nil {
		t.Fatalf("expected signature to validate, got %v", err)
	}

	if err := VerifyStripeWebhookSignature([]byte(`{"tampered":true}`), header, secret, now, DefaultSignatureTolerance); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected tampered payload to fail, got %v", err)
	}
	if err := VerifyStripeWebhookSignature(payload, header, "whsec_other", now, DefaultSignatureTolerance); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected wrong secret to fail, got %v", err)
	}
	if err := VerifyStripeWebhookSignature(payload, header, secret, now.Add(10*time.Minute), DefaultSignatureTolerance); !errors.Is(err, ErrSignatureExpired) {
		t.Fatalf("expected old timestamp to fail, got %v", err)
	}
	if err := VerifyStripeWebhookSignature(payload, "", secret, now, DefaultSignatureTolerance); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected missing header to fail, got %v", err)
	}
	if err := VerifyStripeWebhookSignature(payload, "t=abc,v1=zz", secret, now, DefaultSignatureTolerance); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected malformed header to fail, got %v", err)
	}
}

func TestVerifyStripeWebhookSignatureAcceptsAnyV1(t *testing.T) {
	payload := []byte(`{}`)
	now := time.Unix(1700000000, 0)
	good := SignStripePayload(payload, "whsec_new", now)
	header := good + ",v1=" + "00ff"

	if err := VerifyStripeWebhookSignature(payload, header, "whsec_new", now, DefaultSignatureTolerance); err != nil {
		t.Fatalf("expected rotated secret header to validate, got %v", err)
	}
}
