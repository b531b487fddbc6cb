package coupons

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/therapy-practice-api/internal/http/apiutil"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

type Handler struct {
	validator *Validator
	logger    *logging.Logger
}

func NewHandler(v *Validator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{validator: v, logger: logger}
}

type validateRequest struct {
	Code        string `json:"code" validate:"required,max=64"`
	AmountMinor int64  `json:"amount_minor" validate:"gte=0"`
}

type couponRequest struct {
	Code           string     `json:"code" validate:"required,max=64"`
	DiscountType   string     `json:"discount_type" validate:"required,oneof=percent fixed"`
	DiscountValue  int64      `json:"discount_value" validate:"required,gt=0"`
	MinAmountMinor int64      `json:"min_amount_minor" validate:"gte=0"`
	ValidFrom      *time.Time `json:"valid_from"`
	ValidUntil     *time.Time `json:"valid_until"`
	MaxUses        *int       `json:"max_uses" validate:"omitempty,gt=0"`
	IsActive       *bool      `json:"is_active"`
}

type activeRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (req couponRequest) toCoupon() Coupon {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return Coupon{
		Code:           req.Code,
		DiscountType:   DiscountType(req.DiscountType),
		DiscountValue:  req.DiscountValue,
		MinAmountMinor: req.MinAmountMinor,
		ValidFrom:      req.ValidFrom,
		ValidUntil:     req.ValidUntil,
		MaxUses:        req.MaxUses,
		IsActive:       active,
	}
}

// Validate handles POST /api/coupons/validate. A rejected code is still a 200
// with valid=false and the reason.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.validator.Validate(r.Context(), req.Code, req.AmountMinor, time.Now())
	if err != nil {
		h.logger.Error("coupon validation failed", "error", err)
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, res)
}

// List handles GET /admin/coupons.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := strings.EqualFold(r.URL.Query().Get("active"), "true")
	out, err := h.validator.List(r.Context(), activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if out == nil {
		out = []Coupon{}
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"coupons": out})
}

// Create handles POST /admin/coupons.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	c, err := h.validator.Create(r.Context(), req.toCoupon())
	if err != nil {
		h.writeError(w, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusCreated, c)
}

// Update handles PUT /admin/coupons/{code}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	if NormalizeCode(req.Code) != NormalizeCode(chi.URLParam(r, "code")) {
		apiutil.WriteError(w, http.StatusBadRequest, "code in body does not match path")
		return
	}
	c, err := h.validator.Update(r.Context(), req.toCoupon())
	if err != nil {
		h.writeError(w, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, c)
}

// SetActive handles PUT /admin/coupons/{code}/active.
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.SetActive(r.Context(), chi.URLParam(r, "code"), *req.Active); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		apiutil.WriteError(w, http.StatusNotFound, "coupon not found")
	case errors.Is(err, ErrDuplicateCode):
		apiutil.WriteError(w, http.StatusConflict, "coupon code already exists")
	case errors.Is(err, ErrInvalidInput):
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("coupon request failed", "error", err)
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
