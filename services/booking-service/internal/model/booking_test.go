package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseServiceTypeAliases(t *testing.T) {
	got, err := ParseServiceType(" Other ")
	if err != nil || got != ServiceCustom {
		t.Fatalf("expected custom, got %q err=%v", got, err)
	}
	if _, err := ParseServiceType("yoga"); err == nil {
		t.Fatal("expected unknown service type error")
	}
}

func TestCheckInvariants(t *testing.T) {
	base := Booking{
		BookingDate:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		Price:           decimal.NewFromInt(20),
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
	}
	if err := base.CheckInvariants(); err != nil {
		t.Fatalf("unexpected violation: %v", err)
	}

	cases := map[string]func(b *Booking){
		"short":           func(b *Booking) { b.DurationMinutes = 10 },
		"negative price":  func(b *Booking) { b.Price = decimal.NewFromInt(-1) },
		"paid pending":    func(b *Booking) { b.PaymentStatus = PaymentPaid },
		"refunded active": func(b *Booking) { b.Status = StatusConfirmed; b.PaymentStatus = PaymentRefunded },
		"link on pending": func(b *Booking) { b.MeetingLink = "https://meet.example/abc" },
	}
	for name, mutate := range cases {
		b := base
		mutate(&b)
		if err := b.CheckInvariants(); err == nil {
			t.Fatalf("%s: expected violation", name)
		}
	}
}

func TestEndIsExclusive(t *testing.T) {
	b := Booking{BookingDate: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), DurationMinutes: 90}
	if want := time.Date(2025, 6, 1, 11, 30, 0, 0, time.UTC); !b.End().Equal(want) {
		t.Fatalf("expected %s, got %s", want, b.End())
	}
}

func TestErrorClassification(t *testing.T) {
	var err error = &TransitionError{From: StatusCancelled, Payment: PaymentPending, Event: "confirm"}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatal("transition error should match ErrInvalidTransition")
	}
	err = NewValidationError("client_email", "invalid email")
	if !errors.Is(err, ErrValidation) {
		t.Fatal("validation error should match ErrValidation")
	}
}
