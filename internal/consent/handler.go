package consent

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/therapy-practice-api/internal/bookings"
	"github.com/wolfman30/therapy-practice-api/internal/http/apiutil"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type recordRequest struct {
	Email           string   `json:"email" validate:"required,email"`
	SessionType     string   `json:"session_type" validate:"required,oneof=individual couples family"`
	Version         string   `json:"version" validate:"required,max=32"`
	Acknowledgments []string `json:"acknowledgments" validate:"required,min=1,dive,required,max=200"`
}

// Record handles POST /api/consents.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	rec, err := h.service.RecordConsent(r.Context(), req.Email, req.SessionType, req.Version, req.Acknowledgments)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			apiutil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("record consent failed", "error", err)
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	apiutil.WriteJSON(w, http.StatusCreated, rec)
}

// Status handles GET /api/consents/status?email=&session_type=.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	email := strings.TrimSpace(q.Get("email"))
	st, err := bookings.ParseSessionType(q.Get("session_type"))
	if email == "" || err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "email and session_type are required")
		return
	}
	ok, err := h.service.HasConsent(r.Context(), email, st, time.Now())
	if err != nil {
		h.logger.Error("consent lookup failed", "error", err)
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]bool{"consented": ok})
}
