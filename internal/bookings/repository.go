package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// querier is the subset of pgxpool.Pool used by the repository.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists bookings in Postgres. Slot exclusivity is enforced by
// the bookings_active_slot_uniq partial index, not by a prior read.
type Repository struct {
	db querier
}

// NewRepository creates a repository backed by pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &Repository{db: pool}
}

func newRepositoryWithQuerier(q querier) *Repository {
	if q == nil {
		panic("bookings: querier required")
	}
	return &Repository{db: q}
}

const bookingColumns = `id, user_id, customer_name, customer_email, customer_phone,
	session_type, session_format, duration_minutes, scheduled_date, scheduled_time,
	status, notes, created_at, updated_at, cancelled_at, cancellation_reason`

// Insert stores a new booking. A held slot surfaces as ErrSlotConflict.
func (r *Repository) Insert(ctx context.Context, b *Booking) error {
	query := `
		INSERT INTO bookings (id, user_id, customer_name, customer_email, customer_phone,
			session_type, session_format, duration_minutes, scheduled_date, scheduled_time,
			status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`
	_, err := r.db.Exec(ctx, query,
		b.ID,
		nullableText(b.UserID),
		b.CustomerName,
		b.CustomerEmail,
		b.CustomerPhone,
		string(b.SessionType),
		string(b.SessionFormat),
		b.DurationMinutes,
		b.ScheduledDate,
		b.ScheduledTime,
		string(b.Status),
		b.Notes,
		b.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSlotConflict
		}
		return fmt.Errorf("bookings: insert: %w", err)
	}
	return nil
}

// Get loads a booking by id.
func (r *Repository) Get(ctx context.Context, id string) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	b, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bookings: load: %w", err)
	}
	return b, nil
}

// UpdateStatus moves a booking to status `to` in one statement, only when the
// current status is one of from. ErrNotFound means no row matched; the caller
// tells a missing row from an illegal transition.
func (r *Repository) UpdateStatus(ctx context.Context, id string, to Status, from []string, reason string, at time.Time) (*Booking, error) {
	query := `
		UPDATE bookings
		SET status = $2,
			updated_at = $4,
			cancelled_at = CASE WHEN $2 = 'cancelled' THEN $4 ELSE cancelled_at END,
			cancellation_reason = CASE WHEN $2 = 'cancelled' THEN $5 ELSE cancellation_reason END
		WHERE id = $1 AND status = ANY($3)
		RETURNING ` + bookingColumns
	b, err := scanBooking(r.db.QueryRow(ctx, query, id, string(to), from, at, nullableText(reason)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bookings: update status: %w", err)
	}
	return b, nil
}

// OccupiedTimes returns the times on date held by non-cancelled bookings.
func (r *Repository) OccupiedTimes(ctx context.Context, date string) ([]string, error) {
	query := `
		SELECT scheduled_time
		FROM bookings
		WHERE scheduled_date = $1 AND status <> 'cancelled'
	`
	rows, err := r.db.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("bookings: occupied times: %w", err)
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("bookings: scan occupied time: %w", err)
		}
		times = append(times, strings.TrimSpace(t))
	}
	return times, rows.Err()
}

// List returns bookings matching the filter, newest slot first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Booking, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	switch {
	case f.UserID != "" && f.Email != "":
		args = append(args, f.UserID, strings.ToLower(f.Email))
		where = append(where, fmt.Sprintf("(user_id = $%d OR lower(customer_email) = $%d)", len(args)-1, len(args)))
	case f.UserID != "":
		add("user_id = $%d", f.UserID)
	case f.Email != "":
		add("lower(customer_email) = $%d", strings.ToLower(f.Email))
	}
	if f.Date != "" {
		add("scheduled_date = $%d", f.Date)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY scheduled_date DESC, scheduled_time DESC LIMIT %d`, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bookings: list: %w", err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Delete hard-deletes a booking. Only the audited admin override calls this.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("bookings: delete: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b       Booking
		userID  *string
		reason  *string
		status  string
		stype   string
		sformat string
	)
	if err := row.Scan(
		&b.ID,
		&userID,
		&b.CustomerName,
		&b.CustomerEmail,
		&b.CustomerPhone,
		&stype,
		&sformat,
		&b.DurationMinutes,
		&b.ScheduledDate,
		&b.ScheduledTime,
		&status,
		&b.Notes,
		&b.CreatedAt,
		&b.UpdatedAt,
		&b.CancelledAt,
		&reason,
	); err != nil {
		return nil, err
	}
	if userID != nil {
		b.UserID = *userID
	}
	if reason != nil {
		b.CancellationReason = *reason
	}
	b.Status = Status(status)
	b.SessionType = SessionType(stype)
	b.SessionFormat = SessionFormat(sformat)
	b.ScheduledTime = strings.TrimSpace(b.ScheduledTime)
	return &b, nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
