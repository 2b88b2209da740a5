package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/jdtheefirst/creator-hq-sub000/libs/auth"
	"github.com/jdtheefirst/creator-hq-sub000/libs/httpx"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/booking"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/payments"
)

const (
	jwtSecret     = "test-jwt-secret"
	webhookSecret = "whsec_handlers"
	creatorID     = "7a0c1f5e-4b8e-4d71-9f0b-2a8c1e3d5b6f"
	bookingID     = "0b6f2f84-3f5b-4d8a-9d4e-5b1c7e2a9f10"
)

// fakeService embeds the interface so tests only implement what they call.
type fakeService struct {
	BookingService

	create   func(booking.CreateParams) (model.Booking, error)
	confirm  func(creatorID, id string) (model.Booking, error)
	webhook  func(payments.WebhookEvent) (booking.Outcome, error)
	quote    func(serviceType string, minutes int) (booking.Quote, error)
	lastHook payments.WebhookEvent
}

func (f *fakeService) CreateBookingRequest(_ context.Context, p booking.CreateParams) (model.Booking, error) {
	return f.create(p)
}

func (f *fakeService) ConfirmBooking(_ context.Context, creatorID, id string) (model.Booking, error) {
	return f.confirm(creatorID, id)
}

func (f *fakeService) HandlePaymentWebhook(_ context.Context, ev payments.WebhookEvent) (booking.Outcome, error) {
	f.lastHook = ev
	return f.webhook(ev)
}

func (f *fakeService) Quote(_ context.Context, serviceType string, minutes int, _ string, _ time.Time) (booking.Quote, error) {
	return f.quote(serviceType, minutes)
}

func sampleBooking() model.Booking {
	start := time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC)
	return model.Booking{
		ID:              bookingID,
		CreatorID:       creatorID,
		ClientName:      "Ada",
		ClientEmail:     "ada@example.com",
		ServiceType:     model.ServiceConsultation,
		BookingDate:     start,
		DurationMinutes: 60,
		Price:           decimal.RequireFromString("20"),
		Currency:        "usd",
		Status:          model.StatusPending,
		PaymentStatus:   model.PaymentPending,
		CreatedAt:       start.Add(-24 * time.Hour),
		UpdatedAt:       start.Add(-24 * time.Hour),
	}
}

func newRouter(svc BookingService) http.Handler {
	h := NewBookingHandler(svc, zap.NewNop(), WebhookConfig{Secret: webhookSecret})
	r := chi.NewRouter()
	passthrough := func(next http.Handler) http.Handler { return next }
	h.Routes(r, auth.RequireAuth(auth.NewVerifier(jwtSecret, "")), httpx.Middleware(passthrough))
	return r
}

func bearer(t *testing.T, subject string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}, jwtSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + tok
}

func TestCreateReturnsPublicView(t *testing.T) {
	var got booking.CreateParams
	svc := &fakeService{create: func(p booking.CreateParams) (model.Booking, error) {
		got = p
		return sampleBooking(), nil
	}}
	body := `{"creator_id":"` + creatorID + `","client_name":"Ada","client_email":"ada@example.com",
		"service_type":"consultation","booking_date":"2030-03-04T10:00:00Z","duration_minutes":60,"price":"0.01"}`
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/bookings", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.DurationMinutes != 60 || !got.BookingDate.Equal(time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected params: %+v", got)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["price"] != "20.00" {
		t.Fatalf("expected server price 20.00, got %v", resp["price"])
	}
	if _, ok := resp["client_email"]; ok {
		t.Fatalf("public response leaked client_email")
	}
}

func TestCreateMapsErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"conflict", model.ErrSlotConflict, http.StatusConflict},
		{"validation", model.NewValidationError("client_email", "Must be a valid email address"), http.StatusBadRequest},
		{"provider", fmt.Errorf("%w: boom", model.ErrPaymentProvider), http.StatusBadGateway},
		{"unknown", fmt.Errorf("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{create: func(booking.CreateParams) (model.Booking, error) {
				return model.Booking{}, tc.err
			}}
			rec := httptest.NewRecorder()
			newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/bookings", strings.NewReader(`{}`)))
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateValidationReturnsFields(t *testing.T) {
	svc := &fakeService{create: func(booking.CreateParams) (model.Booking, error) {
		return model.Booking{}, model.NewValidationError("duration_minutes", "Must be at least 15")
	}}
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/bookings", strings.NewReader(`{}`)))

	var body httpx.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Fields["duration_minutes"] != "Must be at least 15" {
		t.Fatalf("unexpected fields: %+v", body.Fields)
	}
}

func TestCreateRejectsMalformedJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&fakeService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/bookings", strings.NewReader(`{`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreatorRoutesRequireToken(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&fakeService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/"+bookingID+"/confirm", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestConfirmUsesTokenSubject(t *testing.T) {
	var gotCreator, gotID string
	svc := &fakeService{confirm: func(c, id string) (model.Booking, error) {
		gotCreator, gotID = c, id
		b := sampleBooking()
		b.Status = model.StatusConfirmed
		return b, nil
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/"+bookingID+"/confirm", nil)
	req.Header.Set("Authorization", bearer(t, creatorID))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotCreator != creatorID || gotID != bookingID {
		t.Fatalf("unexpected scope %q %q", gotCreator, gotID)
	}
	var resp bookingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "confirmed" || !resp.EndsAt.Equal(resp.BookingDate.Add(time.Hour)) {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestConfirmInvalidTransitionIsConflict(t *testing.T) {
	svc := &fakeService{confirm: func(string, string) (model.Booking, error) {
		return model.Booking{}, &model.TransitionError{From: model.StatusCancelled, Payment: model.PaymentPending, Event: "confirm"}
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/"+bookingID+"/confirm", nil)
	req.Header.Set("Authorization", bearer(t, creatorID))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestQuoteRequiresDuration(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&fakeService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/quote?service_type=workshop", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQuoteFormatsPrice(t *testing.T) {
	svc := &fakeService{quote: func(st string, minutes int) (booking.Quote, error) {
		return booking.Quote{ServiceType: model.ServiceWorkshop, Minutes: minutes, BilledMinutes: 90, Price: decimal.RequireFromString("75"), Currency: "usd"}, nil
	}}
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/quote?service_type=workshop&duration_minutes=90", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp quoteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Price != "75.00" || resp.Available != nil {
		t.Fatalf("unexpected quote: %+v", resp)
	}
}

func signedWebhook(t *testing.T, object map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":      "evt_handlers_1",
		"object":  "event",
		"created": time.Now().Unix(),
		"type":    "checkout.session.completed",
		"data":    map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return payload, signed.Header
}

func completedSession() map[string]any {
	return map[string]any{
		"id":             "cs_test_1",
		"object":         "checkout.session",
		"payment_status": "paid",
		"metadata":       map[string]any{payments.MetadataBookingID: bookingID},
	}
}

func TestStripeWebhookApplies(t *testing.T) {
	svc := &fakeService{webhook: func(payments.WebhookEvent) (booking.Outcome, error) {
		return booking.OutcomeApplied, nil
	}}
	payload, sig := signedWebhook(t, completedSession())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sig)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastHook.BookingID != bookingID || svc.lastHook.Kind != payments.KindPaymentSucceeded {
		t.Fatalf("unexpected event: %+v", svc.lastHook)
	}
	if !strings.Contains(rec.Body.String(), `"applied"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestStripeWebhookBadSignature(t *testing.T) {
	payload, _ := signedWebhook(t, completedSession())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	newRouter(&fakeService{}).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStripeWebhookRejectedTransitionIsAcknowledged(t *testing.T) {
	svc := &fakeService{webhook: func(payments.WebhookEvent) (booking.Outcome, error) {
		return booking.OutcomeRejected, &model.TransitionError{From: model.StatusCancelled, Payment: model.PaymentPending, Event: "payment_succeeded"}
	}}
	payload, sig := signedWebhook(t, completedSession())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sig)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"rejected"`) {
		t.Fatalf("expected 200 rejected, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStripeWebhookStorageFailureRetries(t *testing.T) {
	svc := &fakeService{webhook: func(payments.WebhookEvent) (booking.Outcome, error) {
		return "", fmt.Errorf("connection reset")
	}}
	payload, sig := signedWebhook(t, completedSession())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sig)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
