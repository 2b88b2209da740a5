package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
)

func (s *Store) UpsertCheckoutSession(ctx context.Context, cs model.CheckoutSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkout_sessions (session_id, booking_id, creator_id, amount, currency, status, url)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE
		SET status = EXCLUDED.status,
			url = EXCLUDED.url,
			updated_at = now()
	`, cs.SessionID, cs.BookingID, cs.CreatorID, cs.Amount.StringFixed(2), cs.Currency, string(cs.Status), cs.URL)
	if err != nil {
		return fmt.Errorf("upsert checkout session %s: %w", cs.SessionID, err)
	}
	return nil
}

// MarkCheckoutSession moves a pending session to a final status. Sessions that are
// unknown or already final are left alone.
func (s *Store) MarkCheckoutSession(ctx context.Context, sessionID string, status model.CheckoutStatus, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE checkout_sessions
		SET status = $2,
			updated_at = $3
		WHERE session_id = $1 AND status = 'pending'
	`, sessionID, string(status), at)
	if err != nil {
		return fmt.Errorf("mark checkout session %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) ProviderEventSeen(ctx context.Context, provider, eventID string) (bool, error) {
	var seen bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM provider_events WHERE provider = $1 AND event_id = $2)
	`, provider, eventID).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("lookup provider event %s: %w", eventID, err)
	}
	return seen, nil
}

// RecordProviderEvent stores a processed webhook. Replays are ignored.
func (s *Store) RecordProviderEvent(ctx context.Context, ev model.ProviderEvent) error {
	var payload any
	if len(ev.Payload) > 0 {
		payload = string(ev.Payload)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO provider_events (provider, event_id, event_type, booking_id, occurred_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		ON CONFLICT (provider, event_id) DO NOTHING
	`, ev.Provider, ev.EventID, ev.EventType, ev.BookingID, ev.OccurredAt, payload)
	if err != nil {
		return fmt.Errorf("record provider event %s: %w", ev.EventID, err)
	}
	return nil
}

// AddRevenue adjusts the creator's running revenue total. Negative amounts record refunds.
func (s *Store) AddRevenue(ctx context.Context, creatorID string, amount decimal.Decimal, currency string) error {
	delta := 1
	if amount.IsNegative() {
		delta = -1
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO creator_revenue (creator_id, currency, total, paid_bookings)
		VALUES ($1, $2, $3::numeric, GREATEST($4, 0))
		ON CONFLICT (creator_id, currency) DO UPDATE
		SET total = creator_revenue.total + EXCLUDED.total,
			paid_bookings = GREATEST(creator_revenue.paid_bookings + $4, 0),
			updated_at = now()
	`, creatorID, strings.ToLower(currency), amount.StringFixed(2), delta)
	if err != nil {
		return fmt.Errorf("add revenue for %s: %w", creatorID, err)
	}
	return nil
}

func (s *Store) GetCalendarCredential(ctx context.Context, creatorID string) (model.CalendarCredential, error) {
	var (
		c               model.CalendarCredential
		access, refresh string
		expiry          *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT creator_id::text, provider, access_token_sealed, refresh_token_sealed, expiry, calendar_id
		FROM calendar_credentials
		WHERE creator_id = $1
	`, creatorID).Scan(&c.CreatorID, &c.Provider, &access, &refresh, &expiry, &c.CalendarID)
	if err != nil {
		return model.CalendarCredential{}, classify(err, "calendar credential "+creatorID)
	}
	if c.AccessToken, err = s.sealer.Open(access); err != nil {
		return model.CalendarCredential{}, fmt.Errorf("open access token: %w", err)
	}
	if c.RefreshToken, err = s.sealer.Open(refresh); err != nil {
		return model.CalendarCredential{}, fmt.Errorf("open refresh token: %w", err)
	}
	if expiry != nil {
		c.Expiry = *expiry
	}
	return c, nil
}

func (s *Store) SaveCalendarCredential(ctx context.Context, c model.CalendarCredential) error {
	access, err := s.sealer.Seal(c.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.sealer.Seal(c.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	var expiry *time.Time
	if !c.Expiry.IsZero() {
		expiry = &c.Expiry
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO calendar_credentials
			(creator_id, provider, access_token_sealed, refresh_token_sealed, expiry, calendar_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (creator_id) DO UPDATE
		SET provider = EXCLUDED.provider,
			access_token_sealed = EXCLUDED.access_token_sealed,
			refresh_token_sealed = EXCLUDED.refresh_token_sealed,
			expiry = EXCLUDED.expiry,
			calendar_id = EXCLUDED.calendar_id,
			updated_at = now()
	`, c.CreatorID, c.Provider, access, refresh, expiry, c.CalendarID)
	if err != nil {
		return fmt.Errorf("save calendar credential %s: %w", c.CreatorID, err)
	}
	return nil
}
