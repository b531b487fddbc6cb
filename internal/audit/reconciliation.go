package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ReconciliationItem is a cancelled booking whose payment was not settled.
type ReconciliationItem struct {
	BookingID        string     `json:"booking_id"`
	CustomerEmail    string     `json:"customer_email"`
	ScheduledDate    string     `json:"scheduled_date"`
	ScheduledTime    string     `json:"scheduled_time"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	PaymentID        string     `json:"payment_id"`
	GatewayPaymentID string     `json:"gateway_payment_id,omitempty"`
	AmountMinor      int64      `json:"amount_minor"`
	Currency         string     `json:"currency"`
	PaymentStatus    string     `json:"payment_status"`
}

// Reports runs read-only back-office queries.
type Reports struct {
	db *sql.DB
}

func NewReports(db *sql.DB) *Reports {
	return &Reports{db: db}
}

// Reconciliation lists cancelled bookings whose payment is still in one of
// statuses, "paid" when none are given.
func (r *Reports) Reconciliation(ctx context.Context, statuses []string, limit int) ([]ReconciliationItem, error) {
	if len(statuses) == 0 {
		statuses = []string{"paid"}
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT b.id, b.customer_email, b.scheduled_date, b.scheduled_time, b.cancelled_at,
			p.id, p.gateway_payment_id, p.amount_minor, p.currency, p.status
		FROM bookings b
		JOIN payments p ON p.booking_id = b.id
		WHERE b.status = 'cancelled' AND p.status = ANY($1)
		ORDER BY b.cancelled_at DESC NULLS LAST
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(statuses), limit)
	if err != nil {
		return nil, fmt.Errorf("audit: reconciliation query: %w", err)
	}
	defer rows.Close()

	var out []ReconciliationItem
	for rows.Next() {
		var (
			item        ReconciliationItem
			cancelledAt sql.NullTime
			gatewayID   sql.NullString
		)
		if err := rows.Scan(
			&item.BookingID, &item.CustomerEmail, &item.ScheduledDate, &item.ScheduledTime, &cancelledAt,
			&item.PaymentID, &gatewayID, &item.AmountMinor, &item.Currency, &item.PaymentStatus,
		); err != nil {
			return nil, fmt.Errorf("audit: reconciliation scan: %w", err)
		}
		if cancelledAt.Valid {
			t := cancelledAt.Time
			item.CancelledAt = &t
		}
		item.GatewayPaymentID = gatewayID.String
		out = append(out, item)
	}
	return out, rows.Err()
}
