// Package refunds computes how much of a captured payment is returned when a
// booking is cancelled. It performs no I/O.
package refunds

import (
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/therapy-practice-api/internal/bookings"
)

// ErrPolicyUndefined is returned when cancellation is requested at or after
// the session start. There is no rule for that case; staff settle it by hand.
var ErrPolicyUndefined = errors.New("refunds: no refund policy for a session that has already started")

// ErrInvalidAmount is returned for a negative paid amount.
var ErrInvalidAmount = errors.New("refunds: paid amount must not be negative")

const (
	DefaultFullRefundWindow = 24 * time.Hour
	DefaultPartialPercent   = 50
)

// Policy is the practice's cancellation refund rule.
type Policy struct {
	// Location is the practice timezone the booking's date and time are read in.
	Location         *time.Location
	FullRefundWindow time.Duration
	PartialPercent   int64
}

// DefaultPolicy returns the standard 24 hour / 50 percent rule.
func DefaultPolicy(loc *time.Location) Policy {
	return Policy{Location: loc, FullRefundWindow: DefaultFullRefundWindow, PartialPercent: DefaultPartialPercent}
}

// Quote is a computed refund.
type Quote struct {
	AmountMinor int64         `json:"amount_minor"`
	PaidMinor   int64         `json:"paid_minor"`
	FullRefund  bool          `json:"full_refund"`
	Notice      time.Duration `json:"notice_ns"`
}

// Compute applies the policy to a booking cancelled at requestedAt. Partial
// refunds round down to the minor unit.
func (p Policy) Compute(b *bookings.Booking, paidMinor int64, requestedAt time.Time) (Quote, error) {
	if paidMinor < 0 {
		return Quote{}, ErrInvalidAmount
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	start, err := b.StartsAt(loc)
	if err != nil {
		return Quote{}, fmt.Errorf("refunds: booking %s: %w", b.ID, err)
	}
	notice := start.Sub(requestedAt)
	if notice < 0 {
		return Quote{}, ErrPolicyUndefined
	}

	window := p.FullRefundWindow
	if window <= 0 {
		window = DefaultFullRefundWindow
	}
	q := Quote{PaidMinor: paidMinor, Notice: notice}
	if notice >= window {
		q.AmountMinor = paidMinor
		q.FullRefund = true
		return q, nil
	}

	pct := p.PartialPercent
	if pct < 0 || pct > 100 {
		pct = DefaultPartialPercent
	}
	q.AmountMinor = paidMinor * pct / 100
	return q, nil
}
