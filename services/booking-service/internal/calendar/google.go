package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
)

const ProviderGoogle = "google"

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	// Endpoint overrides the Calendar API base URL (tests, proxies).
	Endpoint string
}

// GoogleProvider writes events to a creator's Google Calendar with their stored OAuth tokens.
type GoogleProvider struct {
	oauth    *oauth2.Config
	endpoint string
	store    CredentialStore
	logger   *zap.Logger
}

func NewGoogleProvider(cfg GoogleConfig, store CredentialStore, logger *zap.Logger) *GoogleProvider {
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     googleoauth.Endpoint,
			Scopes:       []string{gcal.CalendarEventsScope},
		},
		endpoint: cfg.Endpoint,
		store:    store,
		logger:   logger.With(zap.String("component", "calendar.google")),
	}
}

func (p *GoogleProvider) UpsertEvent(ctx context.Context, cred model.CalendarCredential, ev Event) error {
	tok, err := p.token(ctx, cred)
	if err != nil {
		return err
	}

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok)))}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("calendar: google client: %w", err)
	}

	body, err := toGoogleEvent(ev)
	if err != nil {
		return err
	}
	calID := cred.CalendarID
	if calID == "" {
		calID = "primary"
	}

	_, err = svc.Events.Update(calID, body.Id, body).Context(ctx).Do()
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != http.StatusNotFound {
		return fmt.Errorf("calendar: update event: %w", err)
	}
	if _, err := svc.Events.Insert(calID, body).Context(ctx).Do(); err != nil {
		return fmt.Errorf("calendar: insert event: %w", err)
	}
	return nil
}

// token refreshes an expired access token and persists the result.
func (p *GoogleProvider) token(ctx context.Context, cred model.CalendarCredential) (*oauth2.Token, error) {
	stored := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
		TokenType:    "Bearer",
	}
	fresh, err := p.oauth.TokenSource(ctx, stored).Token()
	if err != nil {
		return nil, fmt.Errorf("calendar: refresh token: %w", err)
	}
	if fresh.AccessToken != cred.AccessToken && p.store != nil {
		cred.AccessToken = fresh.AccessToken
		cred.Expiry = fresh.Expiry
		if fresh.RefreshToken != "" {
			cred.RefreshToken = fresh.RefreshToken
		}
		if err := p.store.SaveCalendarCredential(ctx, cred); err != nil {
			p.logger.Warn("persist refreshed token failed", zap.String("creator_id", cred.CreatorID), zap.Error(err))
		}
	}
	return fresh, nil
}

func toGoogleEvent(ev Event) (*gcal.Event, error) {
	id, err := EventID(ev.BookingID)
	if err != nil {
		return nil, err
	}
	tz := ev.Timezone
	if tz == "" {
		tz = "UTC"
	}
	out := &gcal.Event{
		Id:          id,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.MeetingLink,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: tz},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: tz},
	}
	for _, a := range ev.Attendees {
		out.Attendees = append(out.Attendees, &gcal.EventAttendee{Email: a})
	}
	return out, nil
}
