package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
)

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func booking(st model.Status, ps model.PaymentStatus) model.Booking {
	return model.Booking{
		ID:              "b-1",
		DurationMinutes: 60,
		Status:          st,
		PaymentStatus:   ps,
	}
}

func TestApply_HappyPath(t *testing.T) {
	b := booking(model.StatusPending, model.PaymentPending)
	if err := Apply(&b, EventPaymentSucceeded, now); err != nil {
		t.Fatalf("payment: %v", err)
	}
	if b.Status != model.StatusConfirmed || b.PaymentStatus != model.PaymentPaid {
		t.Fatalf("expected confirmed/paid, got %s/%s", b.Status, b.PaymentStatus)
	}
	if !b.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at to be stamped")
	}
	if err := Apply(&b, EventComplete, now); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if b.Status != model.StatusCompleted || b.PaymentStatus != model.PaymentPaid {
		t.Fatalf("expected completed/paid, got %s/%s", b.Status, b.PaymentStatus)
	}
	if err := b.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestApply_ConfirmCancelledIsRejected(t *testing.T) {
	b := booking(model.StatusCancelled, model.PaymentPending)
	before := b
	err := Apply(&b, EventConfirm, now)
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if b != before {
		t.Fatalf("booking mutated on rejected transition: %+v", b)
	}
}

func TestApply_CompletedCannotReopen(t *testing.T) {
	for _, ev := range []Event{EventConfirm, EventCancel, EventReschedule, EventRequestPayment} {
		b := booking(model.StatusCompleted, model.PaymentPaid)
		if err := Apply(&b, ev, now); !errors.Is(err, model.ErrInvalidTransition) {
			t.Fatalf("%s on completed: expected invalid transition, got %v", ev, err)
		}
	}
}

func TestApply_Refund(t *testing.T) {
	b := booking(model.StatusConfirmed, model.PaymentPaid)
	if err := Apply(&b, EventRefund, now); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if b.Status != model.StatusCancelled || b.PaymentStatus != model.PaymentRefunded {
		t.Fatalf("expected cancelled/refunded, got %s/%s", b.Status, b.PaymentStatus)
	}
	if err := Apply(&b, EventRefund, now); !errors.Is(err, ErrAlreadyApplied) {
		t.Fatalf("second refund: expected already applied, got %v", err)
	}

	// completed/paid stays refundable so a provider refund issued after the session is recorded
	done := booking(model.StatusCompleted, model.PaymentPaid)
	if err := Apply(&done, EventRefund, now); err != nil {
		t.Fatalf("refund of completed/paid: %v", err)
	}
	if done.Status != model.StatusCancelled || done.PaymentStatus != model.PaymentRefunded {
		t.Fatalf("expected cancelled/refunded, got %s/%s", done.Status, done.PaymentStatus)
	}
	if err := done.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}

	unpaid := booking(model.StatusConfirmed, model.PaymentPending)
	if err := Apply(&unpaid, EventRefund, now); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("refund of unpaid: expected invalid transition, got %v", err)
	}
}

func TestApply_PaymentRedeliveryIsNoop(t *testing.T) {
	b := booking(model.StatusConfirmed, model.PaymentPaid)
	if err := Apply(&b, EventPaymentSucceeded, now); !errors.Is(err, ErrAlreadyApplied) {
		t.Fatalf("expected already applied, got %v", err)
	}
	cancelled := booking(model.StatusCancelled, model.PaymentPending)
	if err := Apply(&cancelled, EventPaymentSucceeded, now); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("payment on cancelled: expected invalid transition, got %v", err)
	}
}

func TestApply_PaidBookingNeedsRefundToCancel(t *testing.T) {
	b := booking(model.StatusConfirmed, model.PaymentPaid)
	if err := Apply(&b, EventCancel, now); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestApply_GuardsDoNotChangeState(t *testing.T) {
	b := booking(model.StatusPending, model.PaymentPending)
	if err := Apply(&b, EventRequestPayment, now); err != nil {
		t.Fatalf("request payment: %v", err)
	}
	if b.Status != model.StatusPending || !b.UpdatedAt.IsZero() {
		t.Fatalf("guard event should not move the booking: %+v", b)
	}
	if err := Apply(&b, EventSetMeetingLink, now); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("meeting link on pending: expected invalid transition, got %v", err)
	}
}

func TestTransitionsPreserveInvariants(t *testing.T) {
	states := []state{pendingUnpaid, confirmedUnpaid, confirmedPaid, completedUnpaid, completedPaid, cancelledUnpaid, cancelledRefund}
	for ev, row := range transitions {
		for from := range row {
			b := booking(from.status, from.payment)
			if err := Apply(&b, ev, now); err != nil && !errors.Is(err, ErrAlreadyApplied) {
				t.Fatalf("%s from %v: %v", ev, from, err)
			}
			if err := b.CheckInvariants(); err != nil {
				t.Fatalf("%s from %v broke invariants: %v", ev, from, err)
			}
		}
	}
	for _, s := range states {
		if err := booking(s.status, s.payment).CheckInvariants(); err != nil {
			t.Fatalf("reachable state %v violates invariants: %v", s, err)
		}
	}
}

func TestTerminal(t *testing.T) {
	if !Terminal(booking(model.StatusCancelled, model.PaymentRefunded)) {
		t.Fatal("cancelled/refunded should be terminal")
	}
	if Terminal(booking(model.StatusCompleted, model.PaymentPaid)) {
		t.Fatal("completed/paid can still be refunded")
	}
	if !Terminal(booking(model.StatusCompleted, model.PaymentPending)) {
		t.Fatal("completed/unpaid should be terminal")
	}
}
