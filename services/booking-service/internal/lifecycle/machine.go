package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
)

// Event is a lifecycle input applied to a single booking.
type Event string

const (
	EventConfirm          Event = "confirm"
	EventPaymentSucceeded Event = "payment_succeeded"
	EventComplete         Event = "complete"
	EventCancel           Event = "cancel"
	EventRefund           Event = "refund"
	EventRequestPayment   Event = "request_payment"
	EventReschedule       Event = "reschedule"
	EventSetMeetingLink   Event = "set_meeting_link"
)

// ErrAlreadyApplied marks a redelivered event whose effect is already recorded.
var ErrAlreadyApplied = errors.New("lifecycle event already applied")

type state struct {
	status  model.Status
	payment model.PaymentStatus
}

// outcome is the target state for a legal (state, event) pair. noop marks
// redeliveries that must not be applied twice.
type outcome struct {
	to   state
	noop bool
}

var (
	pendingUnpaid   = state{model.StatusPending, model.PaymentPending}
	confirmedUnpaid = state{model.StatusConfirmed, model.PaymentPending}
	confirmedPaid   = state{model.StatusConfirmed, model.PaymentPaid}
	completedUnpaid = state{model.StatusCompleted, model.PaymentPending}
	completedPaid   = state{model.StatusCompleted, model.PaymentPaid}
	cancelledUnpaid = state{model.StatusCancelled, model.PaymentPending}
	cancelledRefund = state{model.StatusCancelled, model.PaymentRefunded}
)

// Any state absent from an event's row is an invalid transition.
var transitions = map[Event]map[state]outcome{
	EventConfirm: {
		pendingUnpaid: {to: confirmedUnpaid},
	},
	EventPaymentSucceeded: {
		pendingUnpaid:   {to: confirmedPaid},
		confirmedUnpaid: {to: confirmedPaid},
		confirmedPaid:   {to: confirmedPaid, noop: true},
		completedPaid:   {to: completedPaid, noop: true},
	},
	EventComplete: {
		confirmedUnpaid: {to: completedUnpaid},
		confirmedPaid:   {to: completedPaid},
	},
	EventCancel: {
		pendingUnpaid:   {to: cancelledUnpaid},
		confirmedUnpaid: {to: cancelledUnpaid},
	},
	// a provider refund after the session still lands; completed is terminal for creator actions only
	EventRefund: {
		confirmedPaid:   {to: cancelledRefund},
		completedPaid:   {to: cancelledRefund},
		cancelledRefund: {to: cancelledRefund, noop: true},
	},
	EventRequestPayment: {
		pendingUnpaid: {to: pendingUnpaid},
	},
	EventReschedule: {
		pendingUnpaid:   {to: pendingUnpaid},
		confirmedUnpaid: {to: confirmedUnpaid},
		confirmedPaid:   {to: confirmedPaid},
	},
	EventSetMeetingLink: {
		confirmedUnpaid: {to: confirmedUnpaid},
		confirmedPaid:   {to: confirmedPaid},
		completedUnpaid: {to: completedUnpaid},
		completedPaid:   {to: completedPaid},
	},
}

// Can reports whether ev is legal for b without mutating it.
func Can(b model.Booking, ev Event) bool {
	_, ok := transitions[ev][state{b.Status, b.PaymentStatus}]
	return ok
}

// Apply moves b to the state ev leads to. On any error b is left untouched.
func Apply(b *model.Booking, ev Event, at time.Time) error {
	row, ok := transitions[ev]
	if !ok {
		return fmt.Errorf("lifecycle: unknown event %q", ev)
	}
	from := state{b.Status, b.PaymentStatus}
	out, ok := row[from]
	if !ok {
		return &model.TransitionError{From: b.Status, Payment: b.PaymentStatus, Event: string(ev)}
	}
	if out.noop {
		return ErrAlreadyApplied
	}
	b.Status = out.to.status
	b.PaymentStatus = out.to.payment
	if out.to != from {
		b.UpdatedAt = at
	}
	return nil
}

// Terminal reports whether no lifecycle event can change the status any further.
func Terminal(b model.Booking) bool {
	from := state{b.Status, b.PaymentStatus}
	for _, row := range transitions {
		if out, ok := row[from]; ok && !out.noop && out.to.status != from.status {
			return false
		}
	}
	return true
}
