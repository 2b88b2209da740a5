package payments

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const ProviderStripe = "stripe"

// MetadataBookingID is the metadata key joining provider objects to bookings.
const MetadataBookingID = "booking_id"

type CheckoutRequest struct {
	BookingID      string
	CreatorID      string
	ClientEmail    string
	Description    string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

type Session struct {
	ID              string
	URL             string
	BookingID       string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	ExpiresAt       time.Time
}

// Paid reports whether the provider has captured the session's payment.
func (s Session) Paid() bool {
	return s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required"
}

type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Session, error)
	GetCheckoutSession(ctx context.Context, id string) (Session, error)
}

// MinorUnits converts a decimal amount to the provider's integer minor units.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
