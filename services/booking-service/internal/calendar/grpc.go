package calendar

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
)

const upsertMethod = "/calendar.v1.CalendarSync/UpsertEvent"

// GRPCProvider hands events to a calendar-sync sidecar that owns provider specifics.
type GRPCProvider struct {
	conn grpc.ClientConnInterface
}

func NewGRPCProvider(conn grpc.ClientConnInterface) *GRPCProvider {
	return &GRPCProvider{conn: conn}
}

func (p *GRPCProvider) UpsertEvent(ctx context.Context, cred model.CalendarCredential, ev Event) error {
	id, err := EventID(ev.BookingID)
	if err != nil {
		return err
	}
	attendees := make([]any, 0, len(ev.Attendees))
	for _, a := range ev.Attendees {
		attendees = append(attendees, a)
	}
	req, err := structpb.NewStruct(map[string]any{
		"creator_id":    cred.CreatorID,
		"provider":      cred.Provider,
		"calendar_id":   cred.CalendarID,
		"access_token":  cred.AccessToken,
		"refresh_token": cred.RefreshToken,
		"expiry":        cred.Expiry.UTC().Format(time.RFC3339),
		"event_id":      id,
		"booking_id":    ev.BookingID,
		"summary":       ev.Summary,
		"description":   ev.Description,
		"start":         ev.Start.UTC().Format(time.RFC3339),
		"end":           ev.End.UTC().Format(time.RFC3339),
		"timezone":      ev.Timezone,
		"meeting_link":  ev.MeetingLink,
		"attendees":     attendees,
	})
	if err != nil {
		return fmt.Errorf("calendar: build request: %w", err)
	}
	var resp structpb.Struct
	if err := p.conn.Invoke(ctx, upsertMethod, req, &resp); err != nil {
		return fmt.Errorf("calendar: sidecar upsert: %w", err)
	}
	if v, ok := resp.GetFields()["error"]; ok && v.GetStringValue() != "" {
		return fmt.Errorf("calendar: sidecar upsert: %s", v.GetStringValue())
	}
	return nil
}
