package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
)

// Event is the provider-neutral view of a booked session.
type Event struct {
	BookingID   string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
	MeetingLink string
	Timezone    string
}

type Provider interface {
	UpsertEvent(ctx context.Context, cred model.CalendarCredential, ev Event) error
}

// CredentialStore persists refreshed tokens.
type CredentialStore interface {
	SaveCalendarCredential(ctx context.Context, cred model.CalendarCredential) error
}

// EventID derives a stable provider event id from a booking id so repeated
// syncs update one event instead of creating duplicates.
func EventID(bookingID string) (string, error) {
	id := strings.ToLower(strings.ReplaceAll(bookingID, "-", ""))
	if len(id) < 5 {
		return "", fmt.Errorf("calendar: booking id %q too short for event id", bookingID)
	}
	for _, r := range id {
		// base32hex alphabet
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'v') {
			return "", fmt.Errorf("calendar: booking id %q not usable as event id", bookingID)
		}
	}
	return "bk" + id, nil
}

type NoopProvider struct{}

func (NoopProvider) UpsertEvent(context.Context, model.CalendarCredential, Event) error { return nil }
