package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/availability"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/dispatch"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/events"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/lifecycle"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/payments"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/pricing"
)

// Store is the persistence contract. CreateBooking and UpdateBooking must check slot
// overlap atomically with the write.
type Store interface {
	GetCreator(ctx context.Context, id string) (model.Creator, error)
	CreateBooking(ctx context.Context, b model.Booking) (model.Booking, error)
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	FindConflicting(ctx context.Context, creatorID string, start, end time.Time, excludeID string) ([]model.Booking, error)
	UpdateBooking(ctx context.Context, id string, mutate func(*model.Booking) error) (model.Booking, error)
	ListByCreator(ctx context.Context, creatorID string, limit int) ([]model.Booking, error)
	ListActiveIntervals(ctx context.Context, creatorID string, from, to time.Time) ([]availability.Interval, error)
	UpsertCheckoutSession(ctx context.Context, cs model.CheckoutSession) error
	MarkCheckoutSession(ctx context.Context, sessionID string, status model.CheckoutStatus, at time.Time) error
	ProviderEventSeen(ctx context.Context, provider, eventID string) (bool, error)
	RecordProviderEvent(ctx context.Context, ev model.ProviderEvent) error
	AddRevenue(ctx context.Context, creatorID string, amount decimal.Decimal, currency string) error
}

type Notifier interface {
	Notify(ctx context.Context, n dispatch.Notice) dispatch.Report
}

type Config struct {
	Currency    string
	MaxDuration int
	// Bookable hours in the creator's timezone, as offsets from midnight.
	DayStart time.Duration
	DayEnd   time.Duration
	SlotStep time.Duration
}

func (c Config) withDefaults() Config {
	if c.Currency == "" {
		c.Currency = "usd"
	}
	c.Currency = strings.ToLower(c.Currency)
	if c.MaxDuration <= 0 {
		c.MaxDuration = 480
	}
	if c.DayEnd <= c.DayStart {
		c.DayStart, c.DayEnd = 9*time.Hour, 17*time.Hour
	}
	if c.SlotStep <= 0 {
		c.SlotStep = pricing.Increment * time.Minute
	}
	return c
}

// Service is the booking lifecycle: every state change goes through it.
type Service struct {
	store    Store
	calc     *pricing.Calculator
	payments payments.Provider
	notifier Notifier
	logger   *zap.Logger
	cfg      Config
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, calc *pricing.Calculator, pay payments.Provider, notifier Notifier, logger *zap.Logger, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:    store,
		calc:     calc,
		payments: pay,
		notifier: notifier,
		logger:   logger.With(zap.String("component", "booking")),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type CreateParams struct {
	CreatorID       string    `json:"creator_id" validate:"required,uuid"`
	ClientName      string    `json:"client_name" validate:"required,max=200"`
	ClientEmail     string    `json:"client_email" validate:"required,email,max=320"`
	Phone           string    `json:"phone" validate:"omitempty,max=40"`
	ServiceType     string    `json:"service_type" validate:"required,oneof=consultation workshop mentoring custom other"`
	BookingDate     time.Time `json:"booking_date" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=15"`
	Notes           string    `json:"notes" validate:"max=2000"`
}

// CreateBookingRequest prices and reserves a slot for a public booking request.
func (s *Service) CreateBookingRequest(ctx context.Context, p CreateParams) (model.Booking, error) {
	p.ClientName = strings.TrimSpace(p.ClientName)
	p.ClientEmail = strings.TrimSpace(p.ClientEmail)
	p.ServiceType = strings.ToLower(strings.TrimSpace(p.ServiceType))
	if err := validateStruct(p); err != nil {
		return model.Booking{}, err
	}
	st, err := model.ParseServiceType(p.ServiceType)
	if err != nil {
		return model.Booking{}, model.NewValidationError("service_type", err.Error())
	}
	if err := s.checkSlotInput(p.BookingDate, p.DurationMinutes); err != nil {
		return model.Booking{}, err
	}

	creator, err := s.store.GetCreator(ctx, p.CreatorID)
	if err != nil {
		return model.Booking{}, err
	}
	price, err := s.calc.Price(st, p.DurationMinutes)
	if err != nil {
		return model.Booking{}, err
	}

	now := s.now().UTC()
	b := model.Booking{
		ID:              uuid.NewString(),
		CreatorID:       creator.ID,
		ClientName:      p.ClientName,
		ClientEmail:     p.ClientEmail,
		Phone:           strings.TrimSpace(p.Phone),
		ServiceType:     st,
		BookingDate:     p.BookingDate.UTC(),
		DurationMinutes: p.DurationMinutes,
		Price:           price,
		Currency:        s.cfg.Currency,
		Status:          model.StatusPending,
		PaymentStatus:   model.PaymentPending,
		Notes:           strings.TrimSpace(p.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := b.CheckInvariants(); err != nil {
		return model.Booking{}, fmt.Errorf("new booking: %w", err)
	}

	created, err := s.store.CreateBooking(ctx, b)
	if err != nil {
		return model.Booking{}, err
	}
	s.logger.Info("booking requested",
		zap.String("booking_id", created.ID),
		zap.String("creator_id", created.CreatorID),
		zap.Time("start", created.BookingDate),
		zap.Int("duration_minutes", created.DurationMinutes),
		zap.String("price", created.Price.StringFixed(2)),
	)
	s.notify(ctx, dispatch.Notice{Kind: events.KindRequested, Booking: created, Creator: creator, Note: created.Notes})
	return created, nil
}

func (s *Service) checkSlotInput(start time.Time, minutes int) error {
	if minutes < model.MinDurationMinutes {
		return model.NewValidationError("duration_minutes", fmt.Sprintf("Must be at least %d", model.MinDurationMinutes))
	}
	if minutes > s.cfg.MaxDuration {
		return model.NewValidationError("duration_minutes", fmt.Sprintf("Must be at most %d", s.cfg.MaxDuration))
	}
	if !start.After(s.now()) {
		return model.NewValidationError("booking_date", "Must be in the future")
	}
	return nil
}

// HasConflict reports whether [start, start+minutes) overlaps an active booking of the creator.
// It is advisory; CreateBooking repeats the check atomically.
func (s *Service) HasConflict(ctx context.Context, creatorID string, start time.Time, minutes int) (bool, error) {
	if _, err := uuid.Parse(creatorID); err != nil {
		return false, model.NewValidationError("creator_id", "Must be a valid UUID")
	}
	iv := availability.NewInterval(start, minutes)
	found, err := s.store.FindConflicting(ctx, creatorID, iv.Start, iv.End, "")
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func (s *Service) ConfirmBooking(ctx context.Context, creatorID, id string) (model.Booking, error) {
	return s.transition(ctx, creatorID, id, lifecycle.EventConfirm, events.KindConfirmed, nil)
}

func (s *Service) CompleteBooking(ctx context.Context, creatorID, id string) (model.Booking, error) {
	return s.transition(ctx, creatorID, id, lifecycle.EventComplete, events.KindCompleted, nil)
}

func (s *Service) CancelBooking(ctx context.Context, creatorID, id, reason string) (model.Booking, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > 500 {
		return model.Booking{}, model.NewValidationError("reason", "Maximum length is 500")
	}
	return s.transition(ctx, creatorID, id, lifecycle.EventCancel, events.KindCancelled, func(b *model.Booking) error {
		b.CancelReason = reason
		return nil
	})
}

// RescheduleBooking moves a pending or confirmed booking, re-pricing when the duration changes.
func (s *Service) RescheduleBooking(ctx context.Context, creatorID, id string, start time.Time, minutes int) (model.Booking, error) {
	if err := s.checkSlotInput(start, minutes); err != nil {
		return model.Booking{}, err
	}
	return s.transition(ctx, creatorID, id, lifecycle.EventReschedule, events.KindRescheduled, func(b *model.Booking) error {
		if minutes != b.DurationMinutes {
			if b.PaymentStatus == model.PaymentPaid {
				return model.NewValidationError("duration_minutes", "Duration of a paid booking cannot change")
			}
			price, err := s.calc.Price(b.ServiceType, minutes)
			if err != nil {
				return err
			}
			if !price.Equal(b.Price) {
				// an outstanding checkout link charges the old amount
				b.PaymentID, b.PaymentLink = "", ""
			}
			b.Price = price
			b.DurationMinutes = minutes
		}
		b.BookingDate = start.UTC()
		return nil
	})
}

type meetingLinkParams struct {
	URL string `json:"meeting_link" validate:"required,http_url,max=2048"`
}

func (s *Service) SetMeetingLink(ctx context.Context, creatorID, id, link string) (model.Booking, error) {
	p := meetingLinkParams{URL: strings.TrimSpace(link)}
	if err := validateStruct(p); err != nil {
		return model.Booking{}, err
	}
	return s.transition(ctx, creatorID, id, lifecycle.EventSetMeetingLink, events.KindMeetingLinkSet, func(b *model.Booking) error {
		b.MeetingLink = p.URL
		return nil
	})
}

// transition applies ev to the creator's booking under a row lock and dispatches kind on success.
func (s *Service) transition(ctx context.Context, creatorID, id string, ev lifecycle.Event, kind events.Kind, edit func(*model.Booking) error) (model.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, model.ErrNotFound)
	}
	updated, err := s.store.UpdateBooking(ctx, id, func(b *model.Booking) error {
		if creatorID != "" && b.CreatorID != creatorID {
			return fmt.Errorf("booking %s: %w", id, model.ErrNotFound)
		}
		now := s.now().UTC()
		if err := lifecycle.Apply(b, ev, now); err != nil {
			return err
		}
		if edit != nil {
			if err := edit(b); err != nil {
				return err
			}
			b.UpdatedAt = now
		}
		return b.CheckInvariants()
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.logger.Info("booking transitioned",
		zap.String("booking_id", updated.ID),
		zap.String("event", string(ev)),
		zap.String("status", string(updated.Status)),
		zap.String("payment_status", string(updated.PaymentStatus)),
	)
	s.notifyBooking(ctx, dispatch.Notice{Kind: kind, Booking: updated})
	return updated, nil
}

// notifyBooking fills in the creator before dispatching.
func (s *Service) notifyBooking(ctx context.Context, n dispatch.Notice) {
	creator, err := s.store.GetCreator(ctx, n.Booking.CreatorID)
	if err != nil {
		s.logger.Warn("load creator for notice failed", zap.String("booking_id", n.Booking.ID), zap.Error(err))
		creator = model.Creator{ID: n.Booking.CreatorID}
	}
	n.Creator = creator
	s.notify(ctx, n)
}

func (s *Service) notify(ctx context.Context, n dispatch.Notice) {
	if s.notifier == nil {
		return
	}
	rep := s.notifier.Notify(ctx, n)
	if len(rep.Failed) > 0 {
		names := make([]string, 0, len(rep.Failed))
		for name := range rep.Failed {
			names = append(names, name)
		}
		s.logger.Warn("booking side effects failed",
			zap.String("booking_id", n.Booking.ID),
			zap.String("event", string(n.Kind)),
			zap.Strings("tasks", names),
		)
	}
}

// GetBooking returns the creator's booking; other creators' bookings read as not found.
func (s *Service) GetBooking(ctx context.Context, creatorID, id string) (model.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, model.ErrNotFound)
	}
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	if creatorID != "" && b.CreatorID != creatorID {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, model.ErrNotFound)
	}
	return b, nil
}

func (s *Service) ListBookings(ctx context.Context, creatorID string, limit int) ([]model.Booking, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByCreator(ctx, creatorID, limit)
}

type FreeSlotsParams struct {
	CreatorID       string `json:"creator_id" validate:"required,uuid"`
	Day             string `json:"date" validate:"required,datetime=2006-01-02"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,min=15"`
}

// FreeSlots lists start times on a day, in the creator's timezone, where a booking of
// the given length would not overlap an active booking.
func (s *Service) FreeSlots(ctx context.Context, p FreeSlotsParams) ([]time.Time, error) {
	if err := validateStruct(p); err != nil {
		return nil, err
	}
	creator, err := s.store.GetCreator(ctx, p.CreatorID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(creator.Timezone)
	if err != nil || creator.Timezone == "" {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", p.Day, loc)
	if err != nil {
		return nil, model.NewValidationError("date", "Must be YYYY-MM-DD")
	}
	windowStart := wallClock(day, s.cfg.DayStart)
	windowEnd := wallClock(day, s.cfg.DayEnd)

	busy, err := s.store.ListActiveIntervals(ctx, creator.ID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	duration := time.Duration(p.DurationMinutes) * time.Minute
	return availability.AvailableSlots(windowStart, windowEnd, duration, s.cfg.SlotStep, busy, s.now().In(loc)), nil
}

// wallClock reads offset as a local time of day, so DST days keep the same opening hours.
func wallClock(day time.Time, offset time.Duration) time.Time {
	y, m, d := day.Date()
	h := int(offset / time.Hour)
	mins := int(offset % time.Hour / time.Minute)
	return time.Date(y, m, d, h, mins, 0, 0, day.Location())
}

type Quote struct {
	ServiceType   model.ServiceType `json:"service_type"`
	Minutes       int               `json:"duration_minutes"`
	BilledMinutes int               `json:"billed_minutes"`
	Price         decimal.Decimal   `json:"price"`
	Currency      string            `json:"currency"`
	Available     *bool             `json:"available,omitempty"`
}

// Quote prices a session. When creatorID and start are given it also reports slot availability.
func (s *Service) Quote(ctx context.Context, serviceType string, minutes int, creatorID string, start time.Time) (Quote, error) {
	st, err := model.ParseServiceType(serviceType)
	if err != nil {
		return Quote{}, model.NewValidationError("service_type", err.Error())
	}
	if minutes < model.MinDurationMinutes {
		return Quote{}, model.NewValidationError("duration_minutes", fmt.Sprintf("Must be at least %d", model.MinDurationMinutes))
	}
	price, err := s.calc.Price(st, minutes)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{
		ServiceType:   st,
		Minutes:       minutes,
		BilledMinutes: pricing.BilledMinutes(minutes),
		Price:         price,
		Currency:      s.cfg.Currency,
	}
	if creatorID != "" && !start.IsZero() {
		conflict, err := s.HasConflict(ctx, creatorID, start, minutes)
		if err != nil {
			return Quote{}, err
		}
		free := !conflict
		q.Available = &free
	}
	return q, nil
}

func isAlreadyApplied(err error) bool {
	return errors.Is(err, lifecycle.ErrAlreadyApplied)
}
