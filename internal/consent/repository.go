package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wolfman30/therapy-practice-api/internal/bookings"
)

// Repository stores consent records through database/sql.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		panic("consent: sql db required")
	}
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO consent_records (id, email, session_type, version, acknowledgments, consented_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Email, string(rec.SessionType), rec.Version, pq.Array(rec.Acknowledgments), rec.ConsentedAt,
	)
	if err != nil {
		return fmt.Errorf("consent: insert: %w", err)
	}
	return nil
}

func (r *Repository) Exists(ctx context.Context, email string, sessionType bookings.SessionType, at time.Time) (bool, error) {
	query := `
		SELECT 1 FROM consent_records
		WHERE email = $1 AND session_type = $2 AND consented_at <= $3
		LIMIT 1
	`
	var one int
	err := r.db.QueryRowContext(ctx, query, email, string(sessionType), at).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consent: lookup: %w", err)
	}
	return true, nil
}
