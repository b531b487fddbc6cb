package bookings

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/therapy-practice-api/internal/http/apiutil"
	"github.com/wolfman30/therapy-practice-api/internal/identity"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

type slotLister interface {
	AvailableSlots(ctx context.Context, date string, sessionType SessionType, format SessionFormat) ([]Slot, error)
}

// Handler exposes the slot resolver and booking ledger over HTTP.
type Handler struct {
	service *Service
	slots   slotLister
	logger  *logging.Logger
}

func NewHandler(service *Service, slots slotLister, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, slots: slots, logger: logger}
}

type createBookingRequest struct {
	CustomerName  string `json:"customer_name" validate:"required,max=200"`
	CustomerEmail string `json:"customer_email" validate:"required,email"`
	CustomerPhone string `json:"customer_phone" validate:"omitempty,max=32"`
	SessionType   string `json:"session_type" validate:"required,oneof=individual couples family"`
	SessionFormat string `json:"session_format" validate:"required,oneof=chat audio video"`
	ScheduledDate string `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	ScheduledTime string `json:"scheduled_time" validate:"required,datetime=15:04"`
	Notes         string `json:"notes" validate:"max=2000"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed completed cancelled no_show"`
	Reason string `json:"reason" validate:"max=500"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type slotsResponse struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}

type cancellationResponse struct {
	Booking     *Booking       `json:"booking"`
	Refund      *RefundOutcome `json:"refund,omitempty"`
	RefundError string         `json:"refund_error,omitempty"`
}

// AvailableSlots handles GET /api/slots.
func (h *Handler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	if date == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "date is required")
		return
	}
	sessionType, err := ParseSessionType(defaultString(q.Get("session_type"), string(SessionIndividual)))
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "invalid session_type")
		return
	}
	format, err := ParseSessionFormat(defaultString(q.Get("format"), string(FormatVideo)))
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "invalid format")
		return
	}
	slots, err := h.slots.AvailableSlots(r.Context(), date, sessionType, format)
	if err != nil {
		h.writeError(w, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, slotsResponse{Date: date, Slots: slots})
}

// Create handles POST /api/bookings.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	b, err := h.service.CreateBooking(r.Context(), identity.FromContext(r.Context()), CreateInput{
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		SessionType:   req.SessionType,
		SessionFormat: req.SessionFormat,
		ScheduledDate: req.ScheduledDate,
		ScheduledTime: req.ScheduledTime,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusCreated, b)
}

// List handles GET /api/bookings and GET /admin/bookings. Clients only see
// their own bookings; the service enforces that.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ListFilter{Date: strings.TrimSpace(q.Get("date"))}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		f.Status = Status(raw)
		if !f.Status.Valid() {
			apiutil.WriteError(w, http.StatusBadRequest, "invalid status")
			return
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			apiutil.WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}
	out, err := h.service.List(r.Context(), identity.FromContext(r.Context()), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if out == nil {
		out = []Booking{}
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"bookings": out})
}

// Cancel handles POST /api/bookings/{id}/cancel and its admin twin.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 && !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	c, err := h.service.Cancel(r.Context(), identity.FromContext(r.Context()), id, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := cancellationResponse{Booking: c.Booking, Refund: c.Refund}
	if c.RefundErr != nil {
		resp.RefundError = "refund could not be issued; flagged for reconciliation"
	}
	apiutil.WriteJSON(w, http.StatusOK, resp)
}

// Transition handles POST /admin/bookings/{id}/transition.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	b, err := h.service.Transition(r.Context(), identity.FromContext(r.Context()), id, Status(req.Status), req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, b)
}

// Delete handles DELETE /admin/bookings/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), identity.FromContext(r.Context()), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var invalid *InvalidTransitionError
	switch {
	case errors.As(err, &invalid):
		apiutil.WriteError(w, http.StatusUnprocessableEntity, invalid.Error())
	case errors.Is(err, ErrSlotConflict):
		apiutil.WriteError(w, http.StatusConflict, "slot is no longer available")
	case errors.Is(err, ErrNotFound):
		apiutil.WriteError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, ErrForbidden):
		apiutil.WriteError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, ErrSlotInPast):
		apiutil.WriteError(w, http.StatusUnprocessableEntity, "slot has already started")
	case errors.Is(err, ErrInvalidInput):
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("booking request failed", "error", err)
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
