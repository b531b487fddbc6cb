// Package consent stores the write-once consent acknowledgments a client gives
// before paying for a session. Records are matched by email and session type;
// callers check for one, the booking ledger does not.
package consent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/therapy-practice-api/internal/bookings"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

// ErrInvalidInput wraps consent validation failures.
var ErrInvalidInput = errors.New("consent: invalid input")

// Record is one consent submission.
type Record struct {
	ID              string               `json:"id"`
	Email           string               `json:"email"`
	SessionType     bookings.SessionType `json:"session_type"`
	Version         string               `json:"version"`
	Acknowledgments []string             `json:"acknowledgments"`
	ConsentedAt     time.Time            `json:"consented_at"`
}

// Store persists consent records. It has no update or delete.
type Store interface {
	Insert(ctx context.Context, r *Record) error
	Exists(ctx context.Context, email string, sessionType bookings.SessionType, at time.Time) (bool, error)
}

type Service struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

func NewService(store Store, logger *logging.Logger) *Service {
	if store == nil {
		panic("consent: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// RecordConsent stores a new consent record.
func (s *Service) RecordConsent(ctx context.Context, email, sessionType, version string, acknowledgments []string) (*Record, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	st, err := bookings.ParseSessionType(sessionType)
	if err != nil {
		return nil, fmt.Errorf("%w: session type %q", ErrInvalidInput, sessionType)
	}
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalidInput)
	}
	acks := make([]string, 0, len(acknowledgments))
	for _, a := range acknowledgments {
		if a = strings.TrimSpace(a); a != "" {
			acks = append(acks, a)
		}
	}
	if len(acks) == 0 {
		return nil, fmt.Errorf("%w: at least one acknowledgment is required", ErrInvalidInput)
	}

	rec := &Record{
		ID:              uuid.NewString(),
		Email:           email,
		SessionType:     st,
		Version:         version,
		Acknowledgments: acks,
		ConsentedAt:     s.now().UTC(),
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("consent recorded", "consent_id", rec.ID, "session_type", st, "version", version)
	return rec, nil
}

// HasConsent reports whether a record exists for email and sessionType at or
// before at.
func (s *Service) HasConsent(ctx context.Context, email string, sessionType bookings.SessionType, at time.Time) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, nil
	}
	return s.store.Exists(ctx, email, sessionType, at)
}
