package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/availability"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/dispatch"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/payments"
)

// memStore serialises every call behind one mutex, standing in for the advisory lock
// and exclusion constraint of the Postgres store.
type memStore struct {
	mu       sync.Mutex
	creators map[string]model.Creator
	bookings map[string]model.Booking
	sessions map[string]model.CheckoutSession
	provider map[string]model.ProviderEvent
	revenue  map[string]decimal.Decimal
}

func newMemStore(creators ...model.Creator) *memStore {
	s := &memStore{
		creators: map[string]model.Creator{},
		bookings: map[string]model.Booking{},
		sessions: map[string]model.CheckoutSession{},
		provider: map[string]model.ProviderEvent{},
		revenue:  map[string]decimal.Decimal{},
	}
	for _, c := range creators {
		s.creators[c.ID] = c
	}
	return s
}

func (s *memStore) GetCreator(_ context.Context, id string) (model.Creator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creators[id]
	if !ok {
		return model.Creator{}, fmt.Errorf("creator %s: %w", id, model.ErrNotFound)
	}
	return c, nil
}

func (s *memStore) conflicts(creatorID string, start, end time.Time, excludeID string) []model.Booking {
	want := availability.Interval{Start: start, End: end}
	var out []model.Booking
	for _, b := range s.bookings {
		if b.CreatorID != creatorID || b.ID == excludeID || !b.Status.Active() {
			continue
		}
		bs, be := b.Slot()
		if want.Overlaps(availability.Interval{Start: bs, End: be}) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookingDate.Before(out[j].BookingDate) })
	return out
}

func (s *memStore) CreateBooking(_ context.Context, b model.Booking) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start, end := b.Slot()
	if len(s.conflicts(b.CreatorID, start, end, "")) > 0 {
		return model.Booking{}, model.ErrSlotConflict
	}
	s.bookings[b.ID] = b
	return b, nil
}

func (s *memStore) GetBooking(_ context.Context, id string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, model.ErrNotFound)
	}
	return b, nil
}

func (s *memStore) FindConflicting(_ context.Context, creatorID string, start, end time.Time, excludeID string) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflicts(creatorID, start, end, excludeID), nil
}

func (s *memStore) UpdateBooking(_ context.Context, id string, mutate func(*model.Booking) error) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, model.ErrNotFound)
	}
	next := cur
	if err := mutate(&next); err != nil {
		return model.Booking{}, err
	}
	moved := !next.BookingDate.Equal(cur.BookingDate) || next.DurationMinutes != cur.DurationMinutes
	if moved && next.Status.Active() {
		start, end := next.Slot()
		if len(s.conflicts(next.CreatorID, start, end, id)) > 0 {
			return model.Booking{}, model.ErrSlotConflict
		}
	}
	s.bookings[id] = next
	return next, nil
}

func (s *memStore) ListByCreator(_ context.Context, creatorID string, limit int) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.CreatorID == creatorID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookingDate.After(out[j].BookingDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ListActiveIntervals(_ context.Context, creatorID string, from, to time.Time) ([]availability.Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []availability.Interval
	for _, b := range s.conflicts(creatorID, from, to, "") {
		start, end := b.Slot()
		out = append(out, availability.Interval{Start: start, End: end})
	}
	return out, nil
}

func (s *memStore) UpsertCheckoutSession(_ context.Context, cs model.CheckoutSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[cs.SessionID] = cs
	return nil
}

func (s *memStore) MarkCheckoutSession(_ context.Context, sessionID string, status model.CheckoutStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[sessionID]
	if !ok || cs.Status != model.CheckoutPending {
		return nil
	}
	cs.Status = status
	cs.UpdatedAt = at
	s.sessions[sessionID] = cs
	return nil
}

func (s *memStore) ProviderEventSeen(_ context.Context, provider, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.provider[provider+"/"+eventID]
	return ok, nil
}

func (s *memStore) RecordProviderEvent(_ context.Context, ev model.ProviderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider[ev.Provider+"/"+ev.EventID] = ev
	return nil
}

func (s *memStore) AddRevenue(_ context.Context, creatorID string, amount decimal.Decimal, currency string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := creatorID + "/" + currency
	s.revenue[key] = s.revenue[key].Add(amount)
	return nil
}

func (s *memStore) booking(id string) model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookings[id]
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []dispatch.Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice dispatch.Notice) dispatch.Report {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return dispatch.Report{Kind: notice.Kind}
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.notices))
	for _, x := range n.notices {
		out = append(out, string(x.Kind))
	}
	return out
}

type fakePayments struct {
	mu       sync.Mutex
	created  []payments.CheckoutRequest
	sessions map[string]payments.Session
	err      error
}

func (p *fakePayments) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (payments.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return payments.Session{}, p.err
	}
	p.created = append(p.created, req)
	sess := payments.Session{
		ID:            fmt.Sprintf("cs_test_%d", len(p.created)),
		URL:           fmt.Sprintf("https://checkout.example/cs_test_%d", len(p.created)),
		BookingID:     req.BookingID,
		Status:        "open",
		PaymentStatus: "unpaid",
	}
	if p.sessions == nil {
		p.sessions = map[string]payments.Session{}
	}
	p.sessions[sess.ID] = sess
	return sess, nil
}

func (p *fakePayments) GetCheckoutSession(_ context.Context, id string) (payments.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess, ok := p.sessions[id]
	if !ok {
		return payments.Session{}, fmt.Errorf("checkout session %s: %w", id, model.ErrNotFound)
	}
	return sess, nil
}

func (p *fakePayments) markPaid(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess := p.sessions[id]
	sess.Status = "complete"
	sess.PaymentStatus = "paid"
	p.sessions[id] = sess
}
