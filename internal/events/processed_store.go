package events

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProviderGateway names webhook events from the payment gateway.
const ProviderGateway = "gateway"

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore remembers applied webhook deliveries by (provider, event id).
type ProcessedStore struct {
	db rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{db: pool}
}

func newProcessedStoreWithExec(db rowQuerier) *ProcessedStore {
	if db == nil {
		panic("events: exec required")
	}
	return &ProcessedStore{db: db}
}

// AlreadyProcessed reports whether the delivery was applied before.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	var seen bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2)`,
		provider, eventID,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("events: check processed %s/%s: %w", provider, eventID, err)
	}
	return seen, nil
}

// MarkProcessed records the delivery. False means a concurrent delivery of
// the same event recorded it first.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID, eventType string) (bool, error) {
	ct, err := s.db.Exec(ctx,
		`INSERT INTO processed_events (provider, event_id, event_type) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		provider, eventID, eventType,
	)
	if err != nil {
		return false, fmt.Errorf("events: mark processed %s/%s: %w", provider, eventID, err)
	}
	return ct.RowsAffected() > 0, nil
}

// Purge forgets deliveries recorded before cutoff. The gateway stops retrying
// long before any sensible retention window.
func (s *ProcessedStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM processed_events WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("events: purge processed: %w", err)
	}
	return ct.RowsAffected(), nil
}
