package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// Kind is the booking-relevant meaning of a provider event.
type Kind string

const (
	KindPaymentSucceeded Kind = "payment_succeeded"
	KindPaymentFailed    Kind = "payment_failed"
	KindSessionExpired   Kind = "session_expired"
	KindRefunded         Kind = "refunded"
	KindIgnored          Kind = "ignored"
)

type WebhookEvent struct {
	Provider        string
	EventID         string
	Type            string
	Kind            Kind
	BookingID       string
	SessionID       string
	PaymentIntentID string
	OccurredAt      time.Time
	Payload         []byte
}

// ParseWebhook verifies the Stripe-Signature header and normalises the event.
func ParseWebhook(payload []byte, sigHeader, secret string, tolerance time.Duration) (WebhookEvent, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := WebhookEvent{
		Provider:   ProviderStripe,
		EventID:    evt.ID,
		Type:       string(evt.Type),
		Kind:       KindIgnored,
		OccurredAt: time.Unix(evt.Created, 0).UTC(),
		Payload:    payload,
	}
	if evt.Data == nil {
		return out, nil
	}

	switch out.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			return out, fmt.Errorf("payments: decode checkout session: %w", err)
		}
		s := fromStripe(&sess)
		out.SessionID = s.ID
		out.BookingID = s.BookingID
		out.PaymentIntentID = s.PaymentIntentID
		switch out.Type {
		case "checkout.session.expired":
			out.Kind = KindSessionExpired
		case "checkout.session.async_payment_failed":
			out.Kind = KindPaymentFailed
		default:
			// completed sessions with delayed methods arrive unpaid; async_payment_succeeded follows
			if s.Paid() {
				out.Kind = KindPaymentSucceeded
			}
		}

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return out, fmt.Errorf("payments: decode charge: %w", err)
		}
		out.BookingID = strings.TrimSpace(ch.Metadata[MetadataBookingID])
		if ch.PaymentIntent != nil {
			out.PaymentIntentID = ch.PaymentIntent.ID
		}
		// partial refunds leave the booking paid
		if ch.Refunded {
			out.Kind = KindRefunded
		}
	}
	return out, nil
}
