package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/jdtheefirst/creator-hq-sub000/libs/httpx"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
)

// writeServiceError maps domain errors onto status codes. Unknown errors are logged
// and hidden behind a generic 500.
func (h *BookingHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *model.ValidationError
	var terr *model.TransitionError
	switch {
	case errors.As(err, &verr):
		httpx.WriteFieldErrors(w, http.StatusBadRequest, "validation failed", verr.Fields)
	case errors.Is(err, model.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, model.ErrSlotConflict):
		httpx.WriteError(w, http.StatusConflict, model.ErrSlotConflict.Error())
	case errors.As(err, &terr):
		httpx.WriteError(w, http.StatusConflict, terr.Error())
	case errors.Is(err, model.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, "booking cannot change to that state")
	case errors.Is(err, model.ErrPaymentProvider):
		h.logger.Warn("payment provider error", zap.String("path", r.URL.Path), zap.Error(err))
		httpx.WriteError(w, http.StatusBadGateway, "payment provider unavailable")
	default:
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", httpx.RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
