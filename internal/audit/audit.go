// Package audit records privileged staff actions and reports payments that
// need manual reconciliation.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/therapy-practice-api/internal/identity"
)

// EventType names an audited action.
type EventType string

const (
	EventBookingDeleted    EventType = "booking.deleted"
	EventBookingTransition EventType = "booking.transition"
	EventPaymentRefunded   EventType = "payment.refunded"
	EventCouponChanged     EventType = "coupon.changed"
)

// Event is an immutable audit record.
type Event struct {
	ID          string          `json:"id"`
	EventType   EventType       `json:"event_type"`
	ActorID     string          `json:"actor_id"`
	ActorRole   string          `json:"actor_role"`
	SubjectType string          `json:"subject_type"`
	SubjectID   string          `json:"subject_id"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Service appends to admin_audit_events. There is no update or delete.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// LogEvent records an audit event.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO admin_audit_events (
			id, event_type, actor_id, actor_role, subject_type, subject_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.EventType),
		event.ActorID,
		event.ActorRole,
		event.SubjectType,
		event.SubjectID,
		nullJSON(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// LogAdminOverride records a staff action taken outside the normal flow, with
// a snapshot of the subject in details.
func (s *Service) LogAdminOverride(ctx context.Context, actor identity.Actor, action, subjectType, subjectID string, details any) error {
	var raw json.RawMessage
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("audit: marshal details: %w", err)
		}
		raw = b
	}
	return s.LogEvent(ctx, Event{
		EventType:   EventType(action),
		ActorID:     actor.UserID,
		ActorRole:   string(actor.Role),
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Details:     raw,
	})
}

// Filter narrows QueryEvents.
type Filter struct {
	EventTypes []EventType
	SubjectID  string
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
}

// QueryEvents lists audit events newest first.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, actor_id, actor_role, subject_type, subject_id, details, created_at
		FROM admin_audit_events
		WHERE 1 = 1
	`
	var args []any
	argIdx := 1

	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argIdx)
		args = append(args, pq.Array(types))
		argIdx++
	}
	if filter.SubjectID != "" {
		query += fmt.Sprintf(" AND subject_id = $%d", argIdx)
		args = append(args, filter.SubjectID)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			etype   string
			details []byte
		)
		if err := rows.Scan(&e.ID, &etype, &e.ActorID, &e.ActorRole, &e.SubjectType, &e.SubjectID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.EventType = EventType(etype)
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
