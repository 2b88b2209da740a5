package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jdtheefirst/creator-hq-sub000/libs/httpx"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/booking"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/payments"
)

// BookingService is the slice of booking.Service the HTTP layer drives.
type BookingService interface {
	CreateBookingRequest(ctx context.Context, p booking.CreateParams) (model.Booking, error)
	FreeSlots(ctx context.Context, p booking.FreeSlotsParams) ([]time.Time, error)
	Quote(ctx context.Context, serviceType string, minutes int, creatorID string, start time.Time) (booking.Quote, error)
	ConfirmCheckout(ctx context.Context, sessionID string) (model.Booking, error)
	HandlePaymentWebhook(ctx context.Context, ev payments.WebhookEvent) (booking.Outcome, error)

	GetBooking(ctx context.Context, creatorID, id string) (model.Booking, error)
	ListBookings(ctx context.Context, creatorID string, limit int) ([]model.Booking, error)
	ConfirmBooking(ctx context.Context, creatorID, id string) (model.Booking, error)
	CompleteBooking(ctx context.Context, creatorID, id string) (model.Booking, error)
	CancelBooking(ctx context.Context, creatorID, id, reason string) (model.Booking, error)
	RescheduleBooking(ctx context.Context, creatorID, id string, start time.Time, minutes int) (model.Booking, error)
	RequestPayment(ctx context.Context, creatorID, id, note, idempotencyKey string) (string, error)
	SetMeetingLink(ctx context.Context, creatorID, id, link string) (model.Booking, error)
}

// WebhookConfig holds the Stripe endpoint secret and signature tolerance.
type WebhookConfig struct {
	Secret    string
	Tolerance time.Duration
}

type BookingHandler struct {
	svc     BookingService
	logger  *zap.Logger
	webhook WebhookConfig
}

func NewBookingHandler(svc BookingService, logger *zap.Logger, webhook WebhookConfig) *BookingHandler {
	if webhook.Tolerance <= 0 {
		webhook.Tolerance = 5 * time.Minute
	}
	return &BookingHandler{svc: svc, logger: logger, webhook: webhook}
}

// Routes mounts the public, webhook and creator endpoints. creatorAuth guards the
// creator routes and publicLimit throttles anonymous booking requests.
func (h *BookingHandler) Routes(r chi.Router, creatorAuth, publicLimit httpx.Middleware) {
	r.Route("/api/v1/public", func(r chi.Router) {
		r.With(publicLimit).Post("/bookings", h.Create)
		r.Get("/slots", h.Slots)
		r.Get("/quote", h.Quote)
		r.Post("/checkout/confirm", h.ConfirmCheckout)
	})
	r.Post("/api/v1/webhooks/stripe", h.StripeWebhook)

	r.Route("/api/v1/bookings", func(r chi.Router) {
		r.Use(creatorAuth)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/confirm", h.Confirm)
		r.Post("/{id}/complete", h.Complete)
		r.Post("/{id}/cancel", h.Cancel)
		r.Post("/{id}/reschedule", h.Reschedule)
		r.Post("/{id}/payment-request", h.RequestPayment)
		r.Post("/{id}/meeting-link", h.SetMeetingLink)
	})
}

type bookingResponse struct {
	ID              string    `json:"id"`
	CreatorID       string    `json:"creator_id"`
	ClientName      string    `json:"client_name"`
	ClientEmail     string    `json:"client_email"`
	Phone           string    `json:"phone,omitempty"`
	ServiceType     string    `json:"service_type"`
	BookingDate     time.Time `json:"booking_date"`
	EndsAt          time.Time `json:"ends_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           string    `json:"price"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	PaymentStatus   string    `json:"payment_status"`
	PaymentLink     string    `json:"payment_link,omitempty"`
	MeetingLink     string    `json:"meeting_link,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CancelReason    string    `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toResponse(b model.Booking) bookingResponse {
	return bookingResponse{
		ID:              b.ID,
		CreatorID:       b.CreatorID,
		ClientName:      b.ClientName,
		ClientEmail:     b.ClientEmail,
		Phone:           b.Phone,
		ServiceType:     string(b.ServiceType),
		BookingDate:     b.BookingDate.UTC(),
		EndsAt:          b.End().UTC(),
		DurationMinutes: b.DurationMinutes,
		Price:           b.Price.StringFixed(2),
		Currency:        b.Currency,
		Status:          string(b.Status),
		PaymentStatus:   string(b.PaymentStatus),
		PaymentLink:     b.PaymentLink,
		MeetingLink:     b.MeetingLink,
		Notes:           b.Notes,
		CancelReason:    b.CancelReason,
		CreatedAt:       b.CreatedAt.UTC(),
		UpdatedAt:       b.UpdatedAt.UTC(),
	}
}

// publicBookingResponse is what the anonymous client gets back; no creator data.
type publicBookingResponse struct {
	ID              string    `json:"id"`
	BookingDate     time.Time `json:"booking_date"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           string    `json:"price"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	PaymentStatus   string    `json:"payment_status"`
}

func toPublicResponse(b model.Booking) publicBookingResponse {
	return publicBookingResponse{
		ID:              b.ID,
		BookingDate:     b.BookingDate.UTC(),
		DurationMinutes: b.DurationMinutes,
		Price:           b.Price.StringFixed(2),
		Currency:        b.Currency,
		Status:          string(b.Status),
		PaymentStatus:   string(b.PaymentStatus),
	}
}

// Create accepts a public booking request. Any client-sent price is ignored.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req booking.CreateParams
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.CreateBookingRequest(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toPublicResponse(b))
}

type slotItem struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minutes, ok := queryInt(w, q.Get("duration_minutes"), "duration_minutes")
	if !ok {
		return
	}
	starts, err := h.svc.FreeSlots(r.Context(), booking.FreeSlotsParams{
		CreatorID:       strings.TrimSpace(q.Get("creator_id")),
		Day:             strings.TrimSpace(q.Get("date")),
		DurationMinutes: minutes,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	d := time.Duration(minutes) * time.Minute
	resp := make([]slotItem, 0, len(starts))
	for _, s := range starts {
		resp = append(resp, slotItem{StartTime: s.UTC(), EndTime: s.Add(d).UTC()})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type quoteResponse struct {
	ServiceType   string `json:"service_type"`
	Minutes       int    `json:"duration_minutes"`
	BilledMinutes int    `json:"billed_minutes"`
	Price         string `json:"price"`
	Currency      string `json:"currency"`
	Available     *bool  `json:"available,omitempty"`
}

func (h *BookingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minutes, ok := queryInt(w, q.Get("duration_minutes"), "duration_minutes")
	if !ok {
		return
	}
	var start time.Time
	if raw := strings.TrimSpace(q.Get("start")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteFieldErrors(w, http.StatusBadRequest, "validation failed", map[string]string{"start": "Must be an RFC3339 timestamp"})
			return
		}
		start = t
	}
	quote, err := h.svc.Quote(r.Context(), q.Get("service_type"), minutes, strings.TrimSpace(q.Get("creator_id")), start)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, quoteResponse{
		ServiceType:   string(quote.ServiceType),
		Minutes:       quote.Minutes,
		BilledMinutes: quote.BilledMinutes,
		Price:         quote.Price.StringFixed(2),
		Currency:      quote.Currency,
		Available:     quote.Available,
	})
}

type confirmCheckoutRequest struct {
	SessionID string `json:"session_id"`
}

func (h *BookingHandler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	var req confirmCheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.ConfirmCheckout(r.Context(), req.SessionID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPublicResponse(b))
}

const maxWebhookBytes = 1 << 20

type webhookResponse struct {
	Status string `json:"status"`
}

// StripeWebhook verifies and applies a Stripe event. A permanent rejection still answers
// 200 so Stripe stops retrying; storage failures answer 500 so it retries.
func (h *BookingHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhook.Secret == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "webhooks are not configured")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes+1))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(payload) > maxWebhookBytes {
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	ev, err := payments.ParseWebhook(payload, r.Header.Get("Stripe-Signature"), h.webhook.Secret, h.webhook.Tolerance)
	if err != nil {
		h.logger.Warn("stripe webhook rejected", zap.Error(err))
		httpx.WriteError(w, http.StatusBadRequest, "invalid signature")
		return
	}
	outcome, err := h.svc.HandlePaymentWebhook(r.Context(), ev)
	if err != nil {
		if errors.Is(err, model.ErrInvalidTransition) || errors.Is(err, model.ErrNotFound) {
			h.logger.Warn("stripe webhook not applicable",
				zap.String("event_id", ev.EventID),
				zap.String("booking_id", ev.BookingID),
				zap.Error(err),
			)
			httpx.WriteJSON(w, http.StatusOK, webhookResponse{Status: string(booking.OutcomeRejected)})
			return
		}
		h.logger.Error("stripe webhook failed", zap.String("event_id", ev.EventID), zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "failed to process event")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, webhookResponse{Status: string(outcome)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, raw, field string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		httpx.WriteFieldErrors(w, http.StatusBadRequest, "validation failed", map[string]string{field: "This field is required"})
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		httpx.WriteFieldErrors(w, http.StatusBadRequest, "validation failed", map[string]string{field: "Must be a whole number"})
		return 0, false
	}
	return n, true
}
