package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MinDurationMinutes is the shortest bookable session.
const MinDurationMinutes = 15

type ServiceType string

const (
	ServiceConsultation ServiceType = "consultation"
	ServiceWorkshop     ServiceType = "workshop"
	ServiceMentoring    ServiceType = "mentoring"
	ServiceCustom       ServiceType = "custom"
)

var ServiceTypes = []ServiceType{ServiceConsultation, ServiceWorkshop, ServiceMentoring, ServiceCustom}

// ParseServiceType accepts the canonical names; "other" is an alias for custom.
func ParseServiceType(s string) (ServiceType, error) {
	switch v := ServiceType(strings.ToLower(strings.TrimSpace(s))); v {
	case ServiceConsultation, ServiceWorkshop, ServiceMentoring, ServiceCustom:
		return v, nil
	case "other":
		return ServiceCustom, nil
	default:
		return "", fmt.Errorf("unknown service type %q", s)
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(s string) (Status, error) {
	switch v := Status(s); v {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return v, nil
	default:
		return "", fmt.Errorf("unknown booking status %q", s)
	}
}

// Active bookings hold their slot.
func (s Status) Active() bool { return s != StatusCancelled }

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch v := PaymentStatus(s); v {
	case PaymentPending, PaymentPaid, PaymentRefunded:
		return v, nil
	default:
		return "", fmt.Errorf("unknown payment status %q", s)
	}
}

type Booking struct {
	ID              string
	CreatorID       string
	ClientName      string
	ClientEmail     string
	Phone           string
	ServiceType     ServiceType
	BookingDate     time.Time
	DurationMinutes int
	Price           decimal.Decimal
	Currency        string
	Status          Status
	PaymentStatus   PaymentStatus
	PaymentID       string
	PaymentLink     string
	MeetingLink     string
	Notes           string
	CancelReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// End is the exclusive end of the booked slot.
func (b Booking) End() time.Time {
	return b.BookingDate.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// Slot returns the half-open interval [start, end) the booking reserves.
func (b Booking) Slot() (time.Time, time.Time) {
	return b.BookingDate, b.End()
}

// CheckInvariants reports the first violated data-model rule, if any.
func (b Booking) CheckInvariants() error {
	if b.DurationMinutes < MinDurationMinutes {
		return fmt.Errorf("duration %d below minimum %d", b.DurationMinutes, MinDurationMinutes)
	}
	if b.Price.IsNegative() {
		return fmt.Errorf("negative price %s", b.Price)
	}
	if b.PaymentStatus == PaymentPaid && b.Status != StatusConfirmed && b.Status != StatusCompleted {
		return fmt.Errorf("paid booking in status %s", b.Status)
	}
	if b.PaymentStatus == PaymentRefunded && b.Status != StatusCancelled {
		return fmt.Errorf("refunded booking in status %s", b.Status)
	}
	if b.MeetingLink != "" && b.Status == StatusPending {
		return fmt.Errorf("meeting link set on pending booking")
	}
	return nil
}

type Creator struct {
	ID          string
	DisplayName string
	Email       string
	Timezone    string
}

// CalendarCredential is an OAuth token triple owned by one creator.
type CalendarCredential struct {
	CreatorID    string
	Provider     string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	CalendarID   string
}

type CheckoutStatus string

const (
	CheckoutPending   CheckoutStatus = "pending"
	CheckoutCompleted CheckoutStatus = "completed"
	CheckoutFailed    CheckoutStatus = "failed"
	CheckoutExpired   CheckoutStatus = "expired"
)

type CheckoutSession struct {
	SessionID string
	BookingID string
	CreatorID string
	Amount    decimal.Decimal
	Currency  string
	Status    CheckoutStatus
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProviderEvent records a processed payment-provider webhook for replay suppression.
type ProviderEvent struct {
	Provider   string
	EventID    string
	EventType  string
	BookingID  string
	OccurredAt time.Time
	Payload    []byte
}
