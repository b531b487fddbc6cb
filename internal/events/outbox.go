package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

const (
	defaultBatchSize   = 25
	defaultInterval    = 10 * time.Second
	defaultMaxAttempts = 8
	maxErrorLength     = 500
)

// OutboxEntry is an undelivered lifecycle event.
type OutboxEntry struct {
	ID        uuid.UUID
	Type      string
	Payload   json.RawMessage
	Attempts  int
	CreatedAt time.Time
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

type outboxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore keeps lifecycle events in the same database as the bookings and
// payments they describe.
type OutboxStore struct {
	db outboxQuerier
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

func newOutboxStoreWithExec(db outboxQuerier) *OutboxStore {
	if db == nil {
		panic("events: exec required")
	}
	return &OutboxStore{db: db}
}

// Insert appends an event and returns its id.
func (s *OutboxStore) Insert(ctx context.Context, eventType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal %s: %w", eventType, err)
	}
	id := uuid.New()
	if _, err := s.db.Exec(ctx, `INSERT INTO outbox (id, type, payload) VALUES ($1, $2, $3)`, id, eventType, data); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert %s: %w", eventType, err)
	}
	return id, nil
}

// FetchPending returns the oldest undelivered events that have not used up
// maxAttempts.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int32, maxAttempts int) ([]OutboxEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, type, payload, attempts, created_at
		FROM outbox
		WHERE delivered_at IS NULL AND attempts < $2
		ORDER BY created_at
		LIMIT $1`, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (OutboxEntry, error) {
		var e OutboxEntry
		var payload []byte
		if err := row.Scan(&e.ID, &e.Type, &payload, &e.Attempts, &e.CreatedAt); err != nil {
			return e, err
		}
		e.Payload = json.RawMessage(payload)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("events: scan outbox: %w", err)
	}
	return entries, nil
}

// MarkDelivered stamps the event. False means it was already delivered.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := s.db.Exec(ctx, `UPDATE outbox SET delivered_at = now() WHERE id = $1 AND delivered_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// RecordFailure counts a failed delivery attempt and keeps the last error.
func (s *OutboxStore) RecordFailure(ctx context.Context, id uuid.UUID, cause error) error {
	msg := cause.Error()
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	if _, err := s.db.Exec(ctx, `UPDATE outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, id, msg); err != nil {
		return fmt.Errorf("events: record failure: %w", err)
	}
	return nil
}

type pendingStore interface {
	FetchPending(ctx context.Context, limit int32, maxAttempts int) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	RecordFailure(ctx context.Context, id uuid.UUID, cause error) error
}

// Deliverer polls the outbox and hands each event to the handler. Delivery is
// at least once; an event that fails maxAttempts times stays undelivered for
// the reconciliation report.
type Deliverer struct {
	store       pendingStore
	handler     DeliveryHandler
	logger      *logging.Logger
	batchSize   int32
	maxAttempts int
	interval    time.Duration
}

func NewDeliverer(store pendingStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:       store,
		handler:     handler,
		logger:      logger,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		interval:    defaultInterval,
	}
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Start drains once immediately, then on every tick until ctx ends.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	d.drain(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) {
	entries, err := d.store.FetchPending(ctx, d.batchSize, d.maxAttempts)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.fail(ctx, entry, err)
			continue
		}
		if _, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
		}
	}
}

func (d *Deliverer) fail(ctx context.Context, entry OutboxEntry, cause error) {
	attempt := entry.Attempts + 1
	if attempt >= d.maxAttempts {
		d.logger.Error("outbox delivery abandoned", "event_id", entry.ID, "type", entry.Type, "attempts", attempt, "error", cause)
	} else {
		d.logger.Warn("outbox delivery failed", "event_id", entry.ID, "type", entry.Type, "attempt", attempt, "error", cause)
	}
	if err := d.store.RecordFailure(ctx, entry.ID, cause); err != nil {
		d.logger.Error("failed to record outbox failure", "event_id", entry.ID, "error", err)
	}
}
