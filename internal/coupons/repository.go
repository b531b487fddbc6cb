package coupons

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists coupons and their redemptions.
type Repository struct {
	db querier
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("coupons: pgx pool required")
	}
	return &Repository{db: pool}
}

func newRepositoryWithQuerier(q querier) *Repository {
	if q == nil {
		panic("coupons: querier required")
	}
	return &Repository{db: q}
}

const couponColumns = `id, code, discount_type, discount_value, min_amount_minor,
	valid_from, valid_until, max_uses, used_count, is_active, created_at, updated_at`

func (r *Repository) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	c, err := scanCoupon(r.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("coupons: load: %w", err)
	}
	return c, nil
}

func (r *Repository) Insert(ctx context.Context, c *Coupon) error {
	query := `
		INSERT INTO coupons (id, code, discount_type, discount_value, min_amount_minor,
			valid_from, valid_until, max_uses, used_count, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $10)
	`
	_, err := r.db.Exec(ctx, query,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue, c.MinAmountMinor,
		c.ValidFrom, c.ValidUntil, c.MaxUses, c.IsActive, c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return fmt.Errorf("coupons: insert: %w", err)
	}
	return nil
}

// Update rewrites the editable fields. used_count is never written here.
func (r *Repository) Update(ctx context.Context, c *Coupon) (*Coupon, error) {
	query := `
		UPDATE coupons
		SET discount_type = $2, discount_value = $3, min_amount_minor = $4,
			valid_from = $5, valid_until = $6, max_uses = $7, is_active = $8, updated_at = $9
		WHERE code = $1
		RETURNING ` + couponColumns
	out, err := scanCoupon(r.db.QueryRow(ctx, query,
		c.Code, string(c.DiscountType), c.DiscountValue, c.MinAmountMinor,
		c.ValidFrom, c.ValidUntil, c.MaxUses, c.IsActive, c.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return nil, fmt.Errorf("%w: max uses below current use count", ErrInvalidInput)
		}
		return nil, fmt.Errorf("coupons: update: %w", err)
	}
	return out, nil
}

func (r *Repository) SetActive(ctx context.Context, code string, active bool, at time.Time) error {
	ct, err := r.db.Exec(ctx, `UPDATE coupons SET is_active = $2, updated_at = $3 WHERE code = $1`, code, active, at)
	if err != nil {
		return fmt.Errorf("coupons: set active: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, activeOnly bool) ([]Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("coupons: list: %w", err)
	}
	defer rows.Close()

	var out []Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("coupons: scan: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Redeem records one use of the coupon by a paid payment. The redemption row
// and the counter move together, so replaying the same payment is a no-op and
// the counter never passes max_uses. It reports whether a use was recorded.
func (r *Repository) Redeem(ctx context.Context, code, paymentID string) (bool, error) {
	query := `
		WITH target AS (
			SELECT id FROM coupons
			WHERE code = $1 AND (max_uses IS NULL OR used_count < max_uses)
			FOR UPDATE
		), redeemed AS (
			INSERT INTO coupon_redemptions (coupon_id, payment_id)
			SELECT id, $2 FROM target
			ON CONFLICT DO NOTHING
			RETURNING coupon_id
		)
		UPDATE coupons
		SET used_count = used_count + 1, updated_at = now()
		WHERE id IN (SELECT coupon_id FROM redeemed)
	`
	ct, err := r.db.Exec(ctx, query, code, paymentID)
	if err != nil {
		return false, fmt.Errorf("coupons: redeem: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func scanCoupon(row pgx.Row) (*Coupon, error) {
	var (
		c     Coupon
		dtype string
	)
	if err := row.Scan(
		&c.ID,
		&c.Code,
		&dtype,
		&c.DiscountValue,
		&c.MinAmountMinor,
		&c.ValidFrom,
		&c.ValidUntil,
		&c.MaxUses,
		&c.UsedCount,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.DiscountType = DiscountType(dtype)
	return &c, nil
}
