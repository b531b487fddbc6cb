package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation       = "23505"
	bookingEffectiveIndex = "payments_booking_effective_uniq"
	paymentColumns        = `id, booking_id, gateway_order_id, gateway_payment_id, amount_minor, currency,
	status, refund_amount_minor, gateway_refund_id, metadata, created_at, updated_at, captured_at, refunded_at`
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists payments. Every status change is a conditional update
// on the current status, so a lost race reads as ErrNotFound and the caller
// re-reads.
type Repository struct {
	db querier
}

// NewRepository creates a repository backed by pgx.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &Repository{db: pool}
}

func newRepositoryWithQuerier(q querier) *Repository {
	if q == nil {
		panic("payments: querier required")
	}
	return &Repository{db: q}
}

// Insert stores a new payment.
func (r *Repository) Insert(ctx context.Context, p *Payment) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("payments: marshal metadata: %w", err)
	}
	if p.Metadata == nil {
		metadata = []byte("{}")
	}
	query := `
		INSERT INTO payments (id, booking_id, gateway_order_id, gateway_payment_id, amount_minor, currency,
			status, metadata, created_at, updated_at, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, $10)
	`
	_, err = r.db.Exec(ctx, query,
		p.ID,
		nullableText(p.BookingID),
		p.GatewayOrderID,
		nullableText(p.GatewayPaymentID),
		p.AmountMinor,
		p.Currency,
		string(p.Status),
		metadata,
		p.CreatedAt,
		p.CapturedAt,
	)
	if err != nil {
		if isEffectiveConflict(err) {
			return ErrAlreadyLinked
		}
		return fmt.Errorf("payments: insert: %w", err)
	}
	return nil
}

// GetByID loads a payment by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*Payment, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByOrderID loads a payment by gateway order id.
func (r *Repository) GetByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	return r.getOne(ctx, "gateway_order_id = $1", orderID)
}

// GetByGatewayPaymentID loads a payment by the gateway's payment id.
func (r *Repository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*Payment, error) {
	return r.getOne(ctx, "gateway_payment_id = $1", gatewayPaymentID)
}

// GetEffectiveByBooking loads the booking's payment that has not failed.
func (r *Repository) GetEffectiveByBooking(ctx context.Context, bookingID string) (*Payment, error) {
	return r.getOne(ctx, "booking_id = $1 AND status <> 'failed'", bookingID)
}

func (r *Repository) getOne(ctx context.Context, where string, arg any) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + where + ` LIMIT 1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("payments: load: %w", err)
	}
	return p, nil
}

// MarkPaid moves a pending payment to paid.
func (r *Repository) MarkPaid(ctx context.Context, id, gatewayPaymentID string, at time.Time) (*Payment, error) {
	query := `
		UPDATE payments
		SET status = 'paid', gateway_payment_id = $2, captured_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + paymentColumns
	return r.updateOne(ctx, "mark paid", query, id, gatewayPaymentID, at)
}

// MarkFailed moves a pending payment to failed.
func (r *Repository) MarkFailed(ctx context.Context, id string, at time.Time) (*Payment, error) {
	query := `
		UPDATE payments
		SET status = 'failed', updated_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + paymentColumns
	return r.updateOne(ctx, "mark failed", query, id, at)
}

// Link attaches the payment to a booking. Relinking to the same booking is a
// no-op; a different booking matches no row.
func (r *Repository) Link(ctx context.Context, id, bookingID string, at time.Time) (*Payment, error) {
	query := `
		UPDATE payments
		SET booking_id = $2, updated_at = $3
		WHERE id = $1 AND (booking_id IS NULL OR booking_id = $2)
		RETURNING ` + paymentColumns
	return r.updateOne(ctx, "link", query, id, bookingID, at)
}

// MarkRefunded records a refund on a paid payment.
func (r *Repository) MarkRefunded(ctx context.Context, id string, amountMinor int64, gatewayRefundID string, at time.Time) (*Payment, error) {
	query := `
		UPDATE payments
		SET status = 'refunded', refund_amount_minor = $2, gateway_refund_id = $3, refunded_at = $4, updated_at = $4
		WHERE id = $1 AND status = 'paid'
		RETURNING ` + paymentColumns
	return r.updateOne(ctx, "mark refunded", query, id, amountMinor, nullableText(gatewayRefundID), at)
}

// ExpirePending fails gateway orders left pending since before cutoff.
func (r *Repository) ExpirePending(ctx context.Context, cutoff, at time.Time) (int64, error) {
	query := `
		UPDATE payments
		SET status = 'failed', updated_at = $2
		WHERE status = 'pending' AND created_at < $1 AND gateway_order_id NOT LIKE 'free\_%'
	`
	ct, err := r.db.Exec(ctx, query, cutoff, at)
	if err != nil {
		return 0, fmt.Errorf("payments: expire pending: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (r *Repository) updateOne(ctx context.Context, op, query string, args ...any) (*Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isEffectiveConflict(err) {
			return nil, ErrAlreadyLinked
		}
		return nil, fmt.Errorf("payments: %s: %w", op, err)
	}
	return p, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p                Payment
		bookingID        *string
		gatewayPaymentID *string
		gatewayRefundID  *string
		status           string
		metadata         []byte
	)
	if err := row.Scan(
		&p.ID,
		&bookingID,
		&p.GatewayOrderID,
		&gatewayPaymentID,
		&p.AmountMinor,
		&p.Currency,
		&status,
		&p.RefundAmountMinor,
		&gatewayRefundID,
		&metadata,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.CapturedAt,
		&p.RefundedAt,
	); err != nil {
		return nil, err
	}
	if bookingID != nil {
		p.BookingID = *bookingID
	}
	if gatewayPaymentID != nil {
		p.GatewayPaymentID = *gatewayPaymentID
	}
	if gatewayRefundID != nil {
		p.GatewayRefundID = *gatewayRefundID
	}
	p.Status = Status(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &p, nil
}

func isEffectiveConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == bookingEffectiveIndex
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
