// Package coupons validates discount codes and records their use against paid
// orders.
package coupons

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DiscountType is how a coupon's value is applied.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// Reason explains why a coupon was rejected.
type Reason string

const (
	ReasonNotFound    Reason = "not_found"
	ReasonInactive    Reason = "inactive"
	ReasonNotYetValid Reason = "not_yet_valid"
	ReasonExpired     Reason = "expired"
	ReasonBelowMin    Reason = "below_minimum"
	ReasonExhausted   Reason = "exhausted"
)

var (
	// ErrNotFound is returned by the store when no coupon has the code.
	ErrNotFound = errors.New("coupons: not found")

	// ErrInvalidInput wraps admin validation failures.
	ErrInvalidInput = errors.New("coupons: invalid input")

	// ErrDuplicateCode is returned when creating a code that already exists.
	ErrDuplicateCode = errors.New("coupons: code already exists")
)

// InvalidError carries the rejection reason for callers that need an error.
type InvalidError struct {
	Code   string
	Reason Reason
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("coupons: %s is not applicable: %s", e.Code, e.Reason)
}

// Coupon is a discount code managed by staff.
type Coupon struct {
	ID             string       `json:"id"`
	Code           string       `json:"code"`
	DiscountType   DiscountType `json:"discount_type"`
	DiscountValue  int64        `json:"discount_value"`
	MinAmountMinor int64        `json:"min_amount_minor"`
	ValidFrom      *time.Time   `json:"valid_from,omitempty"`
	ValidUntil     *time.Time   `json:"valid_until,omitempty"`
	MaxUses        *int         `json:"max_uses,omitempty"`
	UsedCount      int          `json:"used_count"`
	IsActive       bool         `json:"is_active"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Result is the outcome of validating a code against an order amount.
type Result struct {
	Code           string `json:"code"`
	Valid          bool   `json:"valid"`
	Reason         Reason `json:"reason,omitempty"`
	DiscountAmount int64  `json:"discount_amount"`
}

// Err returns nil for a valid result and an *InvalidError otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &InvalidError{Code: r.Code, Reason: r.Reason}
}

// NormalizeCode trims and upper-cases a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Evaluate applies the checks in order and stops at the first failure.
func (c *Coupon) Evaluate(orderMinor int64, now time.Time) Result {
	res := Result{Code: c.Code}
	switch {
	case !c.IsActive:
		res.Reason = ReasonInactive
	case c.ValidFrom != nil && now.Before(*c.ValidFrom):
		res.Reason = ReasonNotYetValid
	case c.ValidUntil != nil && now.After(*c.ValidUntil):
		res.Reason = ReasonExpired
	case orderMinor < c.MinAmountMinor:
		res.Reason = ReasonBelowMin
	case c.MaxUses != nil && c.UsedCount >= *c.MaxUses:
		res.Reason = ReasonExhausted
	default:
		res.Valid = true
		res.DiscountAmount = c.Discount(orderMinor)
	}
	return res
}

// Discount computes the discount for an amount. Percent rounds down; a fixed
// discount never exceeds the amount.
func (c *Coupon) Discount(orderMinor int64) int64 {
	if orderMinor <= 0 {
		return 0
	}
	var d int64
	switch c.DiscountType {
	case DiscountPercent:
		d = orderMinor * c.DiscountValue / 100
	case DiscountFixed:
		d = c.DiscountValue
	}
	if d > orderMinor {
		d = orderMinor
	}
	if d < 0 {
		d = 0
	}
	return d
}

func (c *Coupon) validate() error {
	c.Code = NormalizeCode(c.Code)
	if c.Code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	switch c.DiscountType {
	case DiscountPercent:
		if c.DiscountValue < 1 || c.DiscountValue > 100 {
			return fmt.Errorf("%w: percent discount must be 1-100", ErrInvalidInput)
		}
	case DiscountFixed:
		if c.DiscountValue <= 0 {
			return fmt.Errorf("%w: fixed discount must be positive", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: discount type %q", ErrInvalidInput, c.DiscountType)
	}
	if c.MinAmountMinor < 0 {
		return fmt.Errorf("%w: minimum amount must not be negative", ErrInvalidInput)
	}
	if c.ValidFrom != nil && c.ValidUntil != nil && c.ValidUntil.Before(*c.ValidFrom) {
		return fmt.Errorf("%w: valid_until precedes valid_from", ErrInvalidInput)
	}
	if c.MaxUses != nil && *c.MaxUses <= 0 {
		return fmt.Errorf("%w: max uses must be positive", ErrInvalidInput)
	}
	return nil
}
