package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/dispatch"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/events"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/lifecycle"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/payments"
)

// Outcome reports what a payment notification did to its booking.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
)

// RequestPayment opens a checkout session for a pending booking and emails the link to
// the client. Provider failures are returned; nothing is persisted in that case.
func (s *Service) RequestPayment(ctx context.Context, creatorID, id, note, idempotencyKey string) (string, error) {
	note = strings.TrimSpace(note)
	if len(note) > 1000 {
		return "", model.NewValidationError("note", "Maximum length is 1000")
	}
	b, err := s.GetBooking(ctx, creatorID, id)
	if err != nil {
		return "", err
	}
	dryRun := b
	if err := lifecycle.Apply(&dryRun, lifecycle.EventRequestPayment, s.now()); err != nil {
		return "", err
	}
	if s.payments == nil {
		return "", fmt.Errorf("%w: payments are not configured", model.ErrPaymentProvider)
	}

	if idempotencyKey == "" {
		// same booking state, same session: double submits do not open two checkouts
		idempotencyKey = fmt.Sprintf("booking:%s:%s:%d", b.ID, b.Price.StringFixed(2), b.UpdatedAt.UnixNano())
	}
	sess, err := s.payments.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		BookingID:      b.ID,
		CreatorID:      b.CreatorID,
		ClientEmail:    b.ClientEmail,
		Description:    fmt.Sprintf("%s session (%d min)", b.ServiceType, b.DurationMinutes),
		Amount:         b.Price,
		Currency:       b.Currency,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		if !errors.Is(err, model.ErrPaymentProvider) && !errors.Is(err, model.ErrValidation) {
			err = fmt.Errorf("%w: %v", model.ErrPaymentProvider, err)
		}
		return "", err
	}

	updated, err := s.store.UpdateBooking(ctx, b.ID, func(cur *model.Booking) error {
		if err := lifecycle.Apply(cur, lifecycle.EventRequestPayment, s.now().UTC()); err != nil {
			return err
		}
		cur.PaymentID = sess.ID
		cur.PaymentLink = sess.URL
		return nil
	})
	if err != nil {
		return "", err
	}
	if err := s.store.UpsertCheckoutSession(ctx, model.CheckoutSession{
		SessionID: sess.ID,
		BookingID: updated.ID,
		CreatorID: updated.CreatorID,
		Amount:    updated.Price,
		Currency:  updated.Currency,
		Status:    model.CheckoutPending,
		URL:       sess.URL,
	}); err != nil {
		s.logger.Warn("record checkout session failed", zap.String("booking_id", updated.ID), zap.String("session_id", sess.ID), zap.Error(err))
	}

	s.logger.Info("payment requested", zap.String("booking_id", updated.ID), zap.String("session_id", sess.ID))
	s.notifyBooking(ctx, dispatch.Notice{Kind: events.KindPaymentRequested, Booking: updated, PaymentLink: sess.URL, Note: note})
	return sess.URL, nil
}

// HandlePaymentWebhook applies a verified provider event. Redelivered events are
// recognised by id and by the booking already being in the target state.
func (s *Service) HandlePaymentWebhook(ctx context.Context, ev payments.WebhookEvent) (Outcome, error) {
	log := s.logger.With(
		zap.String("provider", ev.Provider),
		zap.String("provider_event_id", ev.EventID),
		zap.String("event_type", ev.Type),
		zap.String("booking_id", ev.BookingID),
	)
	if ev.EventID != "" {
		seen, err := s.store.ProviderEventSeen(ctx, ev.Provider, ev.EventID)
		if err != nil {
			return "", err
		}
		if seen {
			log.Info("provider event duplicate ignored")
			return OutcomeDuplicate, nil
		}
	}

	outcome, err := s.applyWebhook(ctx, ev)
	if err != nil && !errors.Is(err, model.ErrInvalidTransition) {
		// not recorded, so the provider's retry gets another attempt
		return "", err
	}
	if err != nil {
		outcome = OutcomeRejected
		log.Error("provider event rejected by booking state", zap.Error(err))
	} else {
		log.Info("provider event processed", zap.String("outcome", string(outcome)))
	}

	if ev.EventID != "" {
		if rerr := s.store.RecordProviderEvent(ctx, model.ProviderEvent{
			Provider:   ev.Provider,
			EventID:    ev.EventID,
			EventType:  ev.Type,
			BookingID:  ev.BookingID,
			OccurredAt: ev.OccurredAt,
			Payload:    ev.Payload,
		}); rerr != nil {
			log.Warn("record provider event failed", zap.Error(rerr))
		}
	}
	return outcome, err
}

func (s *Service) applyWebhook(ctx context.Context, ev payments.WebhookEvent) (Outcome, error) {
	switch ev.Kind {
	case payments.KindPaymentSucceeded:
		if _, err := uuid.Parse(ev.BookingID); err != nil {
			return OutcomeIgnored, nil
		}
		_, outcome, err := s.markPaid(ctx, ev.BookingID, ev.SessionID)
		if errors.Is(err, model.ErrNotFound) {
			return OutcomeIgnored, nil
		}
		return outcome, err

	case payments.KindRefunded:
		if _, err := uuid.Parse(ev.BookingID); err != nil {
			return OutcomeIgnored, nil
		}
		return s.markRefunded(ctx, ev.BookingID)

	case payments.KindSessionExpired, payments.KindPaymentFailed:
		status := model.CheckoutExpired
		if ev.Kind == payments.KindPaymentFailed {
			status = model.CheckoutFailed
		}
		if ev.SessionID != "" {
			if err := s.store.MarkCheckoutSession(ctx, ev.SessionID, status, ev.OccurredAt); err != nil {
				return "", err
			}
		}
		if _, err := uuid.Parse(ev.BookingID); err != nil || ev.SessionID == "" {
			return OutcomeApplied, nil
		}
		// drop the dead link so the creator can request a fresh one
		_, err := s.store.UpdateBooking(ctx, ev.BookingID, func(b *model.Booking) error {
			if b.PaymentID == ev.SessionID && b.PaymentStatus == model.PaymentPending {
				b.PaymentLink = ""
			}
			return nil
		})
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return "", err
		}
		return OutcomeApplied, nil

	default:
		return OutcomeIgnored, nil
	}
}

// markPaid moves a booking to confirmed/paid and fires the paid notices once.
func (s *Service) markPaid(ctx context.Context, bookingID, sessionID string) (model.Booking, Outcome, error) {
	updated, err := s.store.UpdateBooking(ctx, bookingID, func(b *model.Booking) error {
		if err := lifecycle.Apply(b, lifecycle.EventPaymentSucceeded, s.now().UTC()); err != nil {
			return err
		}
		if sessionID != "" {
			b.PaymentID = sessionID
		}
		return nil
	})
	if isAlreadyApplied(err) {
		b, gerr := s.store.GetBooking(ctx, bookingID)
		if gerr != nil {
			return model.Booking{}, "", gerr
		}
		return b, OutcomeDuplicate, nil
	}
	if err != nil {
		return model.Booking{}, "", err
	}

	if sessionID != "" {
		if err := s.store.MarkCheckoutSession(ctx, sessionID, model.CheckoutCompleted, s.now().UTC()); err != nil {
			s.logger.Warn("mark checkout session failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	if err := s.store.AddRevenue(ctx, updated.CreatorID, updated.Price, updated.Currency); err != nil {
		s.logger.Error("revenue update failed", zap.String("booking_id", updated.ID), zap.Error(err))
	}
	s.logger.Info("booking paid", zap.String("booking_id", updated.ID), zap.String("price", updated.Price.StringFixed(2)))
	s.notifyBooking(ctx, dispatch.Notice{Kind: events.KindPaid, Booking: updated})
	return updated, OutcomeApplied, nil
}

func (s *Service) markRefunded(ctx context.Context, bookingID string) (Outcome, error) {
	updated, err := s.store.UpdateBooking(ctx, bookingID, func(b *model.Booking) error {
		return lifecycle.Apply(b, lifecycle.EventRefund, s.now().UTC())
	})
	switch {
	case isAlreadyApplied(err):
		return OutcomeDuplicate, nil
	case errors.Is(err, model.ErrNotFound):
		return OutcomeIgnored, nil
	case err != nil:
		return "", err
	}
	if err := s.store.AddRevenue(ctx, updated.CreatorID, updated.Price.Neg(), updated.Currency); err != nil {
		s.logger.Error("revenue update failed", zap.String("booking_id", updated.ID), zap.Error(err))
	}
	s.logger.Info("booking refunded", zap.String("booking_id", updated.ID))
	s.notifyBooking(ctx, dispatch.Notice{Kind: events.KindRefunded, Booking: updated})
	return OutcomeApplied, nil
}

// ConfirmCheckout is the client's return from checkout. It asks the provider for the
// session state instead of trusting the redirect.
func (s *Service) ConfirmCheckout(ctx context.Context, sessionID string) (model.Booking, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return model.Booking{}, model.NewValidationError("session_id", "This field is required")
	}
	if s.payments == nil {
		return model.Booking{}, fmt.Errorf("%w: payments are not configured", model.ErrPaymentProvider)
	}
	sess, err := s.payments.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return model.Booking{}, err
	}
	if _, err := uuid.Parse(sess.BookingID); err != nil {
		return model.Booking{}, fmt.Errorf("checkout session %s has no booking: %w", sessionID, model.ErrNotFound)
	}
	if !sess.Paid() {
		return s.store.GetBooking(ctx, sess.BookingID)
	}
	b, _, err := s.markPaid(ctx, sess.BookingID, sess.ID)
	return b, err
}
