package coupons

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/therapy-practice-api/internal/observability/metrics"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

// Store is the coupon persistence the validator needs.
type Store interface {
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	Insert(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) (*Coupon, error)
	SetActive(ctx context.Context, code string, active bool, at time.Time) error
	List(ctx context.Context, activeOnly bool) ([]Coupon, error)
	Redeem(ctx context.Context, code, paymentID string) (bool, error)
}

// Validator checks codes at checkout and records redemptions after capture.
// Validation never changes used_count.
type Validator struct {
	store   Store
	metrics *metrics.LifecycleMetrics
	logger  *logging.Logger
	now     func() time.Time
}

func NewValidator(store Store, m *metrics.LifecycleMetrics, logger *logging.Logger) *Validator {
	if store == nil {
		panic("coupons: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Validator{store: store, metrics: m, logger: logger, now: time.Now}
}

// Validate checks code against orderMinor at now. An unknown code is a
// rejected result, not an error; errors are reserved for storage failures.
func (v *Validator) Validate(ctx context.Context, code string, orderMinor int64, now time.Time) (Result, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		v.metrics.ObserveCouponValidation(string(ReasonNotFound))
		return Result{Reason: ReasonNotFound}, nil
	}
	c, err := v.store.GetByCode(ctx, normalized)
	if errors.Is(err, ErrNotFound) {
		v.metrics.ObserveCouponValidation(string(ReasonNotFound))
		return Result{Code: normalized, Reason: ReasonNotFound}, nil
	}
	if err != nil {
		return Result{}, err
	}

	res := c.Evaluate(orderMinor, now)
	if res.Valid {
		v.metrics.ObserveCouponValidation("valid")
	} else {
		v.metrics.ObserveCouponValidation(string(res.Reason))
		v.logger.Info("coupon rejected", "code", normalized, "reason", res.Reason)
	}
	return res, nil
}

// Redeem records the coupon's use by a paid payment. Calling it again for the
// same payment does not count twice.
func (v *Validator) Redeem(ctx context.Context, code, paymentID string) (bool, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return false, nil
	}
	ok, err := v.store.Redeem(ctx, normalized, paymentID)
	if err != nil {
		return false, err
	}
	if !ok {
		v.logger.Info("coupon redemption skipped", "code", normalized, "payment_id", paymentID)
	}
	return ok, nil
}

// Create adds a coupon. used_count starts at zero.
func (v *Validator) Create(ctx context.Context, c Coupon) (*Coupon, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	now := v.now().UTC()
	c.ID = uuid.NewString()
	c.UsedCount = 0
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := v.store.Insert(ctx, &c); err != nil {
		return nil, err
	}
	v.logger.Info("coupon created", "code", c.Code, "discount_type", c.DiscountType, "discount_value", c.DiscountValue)
	return &c, nil
}

// Update replaces the editable fields of an existing coupon.
func (v *Validator) Update(ctx context.Context, c Coupon) (*Coupon, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.UpdatedAt = v.now().UTC()
	return v.store.Update(ctx, &c)
}

func (v *Validator) SetActive(ctx context.Context, code string, active bool) error {
	return v.store.SetActive(ctx, NormalizeCode(code), active, v.now().UTC())
}

func (v *Validator) List(ctx context.Context, activeOnly bool) ([]Coupon, error) {
	return v.store.List(ctx, activeOnly)
}
