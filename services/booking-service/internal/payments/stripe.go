package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"

	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
)

type StripeConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	// APIURL overrides the Stripe API base (stripe-mock, tests).
	APIURL string
}

// StripeProvider creates one-off Checkout Sessions for bookings.
type StripeProvider struct {
	sessions   *checkoutsession.Client
	successURL string
	cancelURL  string
}

func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("payments: stripe secret key is required")
	}
	if cfg.SuccessURL == "" || cfg.CancelURL == "" {
		return nil, errors.New("payments: checkout success and cancel urls are required")
	}
	var backend stripe.Backend
	if cfg.APIURL != "" {
		backend = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(cfg.APIURL),
			MaxNetworkRetries: stripe.Int64(0),
		})
	} else {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &StripeProvider{
		sessions:   &checkoutsession.Client{B: backend, Key: cfg.SecretKey},
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Session, error) {
	cents := MinorUnits(req.Amount)
	if cents <= 0 {
		return Session{}, model.NewValidationError("price", "booking has no payable amount")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.successURL),
		CancelURL:         stripe.String(p.cancelURL),
		ClientReferenceID: stripe.String(req.BookingID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(cents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetadataBookingID: req.BookingID},
		},
	}
	if req.ClientEmail != "" {
		params.CustomerEmail = stripe.String(req.ClientEmail)
	}
	params.AddMetadata(MetadataBookingID, req.BookingID)
	params.AddMetadata("creator_id", req.CreatorID)
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	params.Context = ctx

	sess, err := p.sessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("%w: create checkout session: %v", model.ErrPaymentProvider, err)
	}
	return fromStripe(sess), nil
}

func (p *StripeProvider) GetCheckoutSession(ctx context.Context, id string) (Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := p.sessions.Get(id, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == 404 {
			return Session{}, fmt.Errorf("checkout session %s: %w", id, model.ErrNotFound)
		}
		return Session{}, fmt.Errorf("%w: get checkout session: %v", model.ErrPaymentProvider, err)
	}
	return fromStripe(sess), nil
}

func fromStripe(s *stripe.CheckoutSession) Session {
	out := Session{
		ID:            s.ID,
		URL:           s.URL,
		BookingID:     strings.TrimSpace(s.Metadata[MetadataBookingID]),
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
	}
	if out.BookingID == "" {
		out.BookingID = s.ClientReferenceID
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0).UTC()
	}
	return out
}
