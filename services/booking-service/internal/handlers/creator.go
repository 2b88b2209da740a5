package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jdtheefirst/creator-hq-sub000/libs/auth"
	"github.com/jdtheefirst/creator-hq-sub000/libs/httpx"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
)

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

type rescheduleRequest struct {
	BookingDate     time.Time `json:"booking_date"`
	DurationMinutes int       `json:"duration_minutes"`
}

type paymentRequest struct {
	Note string `json:"note"`
}

type paymentRequestResponse struct {
	BookingID   string `json:"booking_id"`
	PaymentLink string `json:"payment_link"`
}

type meetingLinkRequest struct {
	MeetingLink string `json:"meeting_link"`
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	list, err := h.svc.ListBookings(r.Context(), auth.CreatorIDFromContext(r.Context()), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items := make([]bookingResponse, 0, len(list))
	for _, b := range list {
		items = append(items, toResponse(b))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.GetBooking(r.Context(), auth.CreatorIDFromContext(r.Context()), chi.URLParam(r, "id"))
	h.writeBooking(w, r, b, err)
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.ConfirmBooking(r.Context(), auth.CreatorIDFromContext(r.Context()), chi.URLParam(r, "id"))
	h.writeBooking(w, r, b, err)
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.CompleteBooking(r.Context(), auth.CreatorIDFromContext(r.Context()), chi.URLParam(r, "id"))
	h.writeBooking(w, r, b, err)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelBookingRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	b, err := h.svc.CancelBooking(r.Context(), auth.CreatorIDFromContext(r.Context()), chi.URLParam(r, "id"), req.Reason)
	h.writeBooking(w, r, b, err)
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.RescheduleBooking(r.Context(), auth.CreatorIDFromContext(r.Context()), chi.URLParam(r, "id"), req.BookingDate, req.DurationMinutes)
	h.writeBooking(w, r, b, err)
}

// RequestPayment honours an Idempotency-Key header so a retried click reuses the session.
func (h *BookingHandler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	link, err := h.svc.RequestPayment(r.Context(), auth.CreatorIDFromContext(r.Context()), id, req.Note, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentRequestResponse{BookingID: id, PaymentLink: link})
}

func (h *BookingHandler) SetMeetingLink(w http.ResponseWriter, r *http.Request) {
	var req meetingLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.SetMeetingLink(r.Context(), auth.CreatorIDFromContext(r.Context()), chi.URLParam(r, "id"), req.MeetingLink)
	h.writeBooking(w, r, b, err)
}

func (h *BookingHandler) writeBooking(w http.ResponseWriter, r *http.Request, b model.Booking, err error) {
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(b))
}
