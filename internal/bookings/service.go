package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/therapy-practice-api/internal/events"
	"github.com/wolfman30/therapy-practice-api/internal/identity"
	"github.com/wolfman30/therapy-practice-api/internal/observability/metrics"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

var bookingsTracer = otel.Tracer("practice.internal.bookings")

// Store is the persistence the ledger needs.
type Store interface {
	Insert(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id string) (*Booking, error)
	UpdateStatus(ctx context.Context, id string, to Status, from []string, reason string, at time.Time) (*Booking, error)
	List(ctx context.Context, f ListFilter) ([]Booking, error)
	Delete(ctx context.Context, id string) error
}

// SlotCatalog is the part of the Resolver the ledger depends on.
type SlotCatalog interface {
	Offers(clock string) bool
	Invalidate(ctx context.Context, date string)
}

// RefundOutcome describes a refund issued for a cancelled booking.
type RefundOutcome struct {
	PaymentID       string `json:"payment_id"`
	AmountMinor     int64  `json:"amount_minor"`
	FullRefund      bool   `json:"full_refund"`
	GatewayRefundID string `json:"gateway_refund_id,omitempty"`
}

// Refunder issues the refund that follows a cancellation. A nil outcome with
// a nil error means there was nothing to refund.
type Refunder interface {
	RefundBooking(ctx context.Context, b *Booking, requestedAt time.Time) (*RefundOutcome, error)
}

type outboxWriter interface {
	Insert(ctx context.Context, eventType string, payload any) (uuid.UUID, error)
}

type auditLogger interface {
	LogAdminOverride(ctx context.Context, actor identity.Actor, action, subjectType, subjectID string, details any) error
}

// Cancellation is the result of cancelling a booking. RefundErr is set when the
// booking was cancelled but its refund could not be issued; the booking stays
// cancelled and the payment is flagged for manual reconciliation.
type Cancellation struct {
	Booking   *Booking       `json:"booking"`
	Refund    *RefundOutcome `json:"refund,omitempty"`
	RefundErr error          `json:"-"`
}

// Service is the booking ledger.
type Service struct {
	store    Store
	slots    SlotCatalog
	refunder Refunder
	outbox   outboxWriter
	audit    auditLogger
	metrics  *metrics.LifecycleMetrics
	loc      *time.Location
	now      func() time.Time
	logger   *logging.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithRefunder sets the dependent refund step run after cancellation.
func WithRefunder(r Refunder) Option { return func(s *Service) { s.refunder = r } }

// WithOutbox sets the reconciliation event writer.
func WithOutbox(o outboxWriter) Option { return func(s *Service) { s.outbox = o } }

// WithAudit sets the admin override audit log.
func WithAudit(a auditLogger) Option { return func(s *Service) { s.audit = a } }

// WithMetrics sets lifecycle metrics.
func WithMetrics(m *metrics.LifecycleMetrics) Option { return func(s *Service) { s.metrics = m } }

// WithLocation sets the practice timezone.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService constructs a bookings service.
func NewService(store Store, slots SlotCatalog, logger *logging.Logger, opts ...Option) *Service {
	if store == nil {
		panic("bookings: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		store:  store,
		slots:  slots,
		loc:    time.UTC,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRefunder wires the refund step after construction; the payment tracker
// depends on the ledger, so main builds the ledger first.
func (s *Service) SetRefunder(r Refunder) { s.refunder = r }

// CreateBooking records a pending booking for a free slot.
func (s *Service) CreateBooking(ctx context.Context, actor identity.Actor, in CreateInput) (*Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.create")
	defer span.End()

	b, err := s.newBooking(actor, in)
	if err != nil {
		s.metrics.ObserveBookingCreated("invalid")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("practice.booking_id", b.ID),
		attribute.String("practice.slot", b.ScheduledDate+" "+b.ScheduledTime),
	)

	if err := s.store.Insert(ctx, b); err != nil {
		if errors.Is(err, ErrSlotConflict) {
			s.metrics.ObserveBookingCreated("conflict")
			s.logger.Info("booking slot conflict", "date", b.ScheduledDate, "time", b.ScheduledTime)
			return nil, err
		}
		span.RecordError(err)
		s.metrics.ObserveBookingCreated("error")
		return nil, err
	}
	if s.slots != nil {
		s.slots.Invalidate(ctx, b.ScheduledDate)
	}
	s.metrics.ObserveBookingCreated("created")
	s.logger.Info("booking created",
		"booking_id", b.ID,
		"date", b.ScheduledDate,
		"time", b.ScheduledTime,
		"session_type", b.SessionType,
		"session_format", b.SessionFormat,
	)
	return b, nil
}

func (s *Service) newBooking(actor identity.Actor, in CreateInput) (*Booking, error) {
	st, err := ParseSessionType(in.SessionType)
	if err != nil {
		return nil, err
	}
	format, err := ParseSessionFormat(in.SessionFormat)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.CustomerName)
	email := strings.ToLower(strings.TrimSpace(in.CustomerEmail))
	if name == "" {
		return nil, fmt.Errorf("%w: customer name is required", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: customer email is required", ErrInvalidInput)
	}
	start, err := SlotStart(in.ScheduledDate, in.ScheduledTime, s.loc)
	if err != nil {
		return nil, err
	}
	clock := start.Format(timeLayout)
	if s.slots != nil && !s.slots.Offers(clock) {
		return nil, fmt.Errorf("%w: %s is not an offered time", ErrInvalidInput, clock)
	}
	now := s.now().UTC()
	if !start.After(now) {
		return nil, ErrSlotInPast
	}

	b := &Booking{
		ID:              uuid.NewString(),
		CustomerName:    name,
		CustomerEmail:   email,
		CustomerPhone:   strings.TrimSpace(in.CustomerPhone),
		SessionType:     st,
		SessionFormat:   format,
		DurationMinutes: format.DurationMinutes(),
		ScheduledDate:   start.Format(dateLayout),
		ScheduledTime:   clock,
		Status:          StatusPending,
		Notes:           strings.TrimSpace(in.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if actor.IsAuthenticated() {
		b.UserID = actor.UserID
	}
	return b, nil
}

// Get returns a booking visible to the actor.
func (s *Service) Get(ctx context.Context, actor identity.Actor, id string) (*Booking, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && actor.Role != identity.RoleSystem && !b.OwnedBy(actor.UserID, actor.Email) {
		return nil, ErrNotFound
	}
	return b, nil
}

// List returns bookings for staff, or the actor's own bookings.
func (s *Service) List(ctx context.Context, actor identity.Actor, f ListFilter) ([]Booking, error) {
	switch {
	case actor.IsStaff():
	case actor.IsAuthenticated():
		f.UserID = actor.UserID
		f.Email = actor.Email
	default:
		return nil, ErrForbidden
	}
	return s.store.List(ctx, f)
}

// Transition moves a booking along the state machine. Cancelling goes through
// Cancel so the refund step always runs.
func (s *Service) Transition(ctx context.Context, actor identity.Actor, id string, to Status, reason string) (*Booking, error) {
	if to == StatusCancelled {
		c, err := s.Cancel(ctx, actor, id, reason)
		if err != nil {
			return nil, err
		}
		return c.Booking, nil
	}
	return s.transition(ctx, actor, id, to, reason)
}

func (s *Service) transition(ctx context.Context, actor identity.Actor, id string, to Status, reason string) (*Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("practice.booking_id", id),
		attribute.String("practice.to_status", string(to)),
	)

	if !to.Valid() {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidInput, to)
	}
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeTransition(actor, current, to); err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		s.metrics.ObserveTransition(string(current.Status), string(to), "rejected")
		s.logger.Warn("transition attempted from terminal state",
			"booking_id", id,
			"from", current.Status,
			"to", to,
			"actor_role", actor.Role,
		)
		return nil, &InvalidTransitionError{BookingID: id, From: current.Status, To: to, Terminal: true}
	}
	if !CanTransition(current.Status, to) {
		s.metrics.ObserveTransition(string(current.Status), string(to), "rejected")
		return nil, &InvalidTransitionError{BookingID: id, From: current.Status, To: to}
	}

	updated, err := s.store.UpdateStatus(ctx, id, to, allowedFrom(to), reason, s.now().UTC())
	if errors.Is(err, ErrNotFound) {
		// Lost a race with a concurrent update; report what the row holds now.
		latest, getErr := s.store.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		s.metrics.ObserveTransition(string(latest.Status), string(to), "rejected")
		return nil, &InvalidTransitionError{BookingID: id, From: latest.Status, To: to, Terminal: latest.Status.Terminal()}
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.ObserveTransition(string(current.Status), string(to), "ok")
	s.logger.Info("booking transitioned",
		"booking_id", id,
		"from", current.Status,
		"to", to,
		"actor_role", actor.Role,
	)
	return updated, nil
}

func authorizeTransition(actor identity.Actor, b *Booking, to Status) error {
	switch {
	case actor.IsStaff():
		return nil
	case actor.Role == identity.RoleSystem:
		if to == StatusConfirmed {
			return nil
		}
	case actor.IsAuthenticated():
		if to == StatusCancelled && b.OwnedBy(actor.UserID, actor.Email) {
			return nil
		}
	}
	return ErrForbidden
}

// Cancel cancels a booking, then refunds its payment as a separate step. A
// failed refund does not undo the cancellation.
func (s *Service) Cancel(ctx context.Context, actor identity.Actor, id, reason string) (*Cancellation, error) {
	b, err := s.transition(ctx, actor, id, StatusCancelled, reason)
	if err != nil {
		return nil, err
	}
	if s.slots != nil {
		s.slots.Invalidate(ctx, b.ScheduledDate)
	}

	c := &Cancellation{Booking: b}
	if s.refunder == nil {
		return c, nil
	}
	requestedAt := s.now()
	if b.CancelledAt != nil {
		requestedAt = *b.CancelledAt
	}
	outcome, err := s.refunder.RefundBooking(ctx, b, requestedAt)
	if err != nil {
		c.RefundErr = err
		s.logger.Error("refund after cancellation failed",
			"booking_id", b.ID,
			"error", err,
		)
		s.flagReconciliation(ctx, b, "refund_failed", err)
		return c, nil
	}
	c.Refund = outcome
	return c, nil
}

// ConfirmPaid confirms a booking after its payment was verified server side.
// Confirming an already confirmed booking is a no-op.
func (s *Service) ConfirmPaid(ctx context.Context, bookingID string) (*Booking, error) {
	b, err := s.transition(ctx, identity.System(), bookingID, StatusConfirmed, "")
	var invalid *InvalidTransitionError
	if errors.As(err, &invalid) {
		if invalid.From == StatusConfirmed {
			return s.store.Get(ctx, bookingID)
		}
		if current, getErr := s.store.Get(ctx, bookingID); getErr == nil {
			s.flagReconciliation(ctx, current, "paid_after_"+string(invalid.From), err)
		}
	}
	return b, err
}

// Delete hard-deletes a booking. This is an admin override outside the state
// machine and is written to the audit log before the row is removed.
func (s *Service) Delete(ctx context.Context, actor identity.Actor, id string) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.audit == nil {
		return errors.New("bookings: audit log required for delete")
	}
	if err := s.audit.LogAdminOverride(ctx, actor, "booking.deleted", "booking", b.ID, b); err != nil {
		return fmt.Errorf("bookings: audit delete: %w", err)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if s.slots != nil {
		s.slots.Invalidate(ctx, b.ScheduledDate)
	}
	s.logger.Warn("booking hard-deleted", "booking_id", id, "actor_id", actor.UserID)
	return nil
}

func (s *Service) flagReconciliation(ctx context.Context, b *Booking, reason string, cause error) {
	if s.outbox == nil {
		return
	}
	evt := events.ReconciliationRequiredV1{
		BookingID:  b.ID,
		Status:     string(b.Status),
		Reason:     reason,
		Error:      cause.Error(),
		OccurredAt: s.now().UTC(),
	}
	if _, err := s.outbox.Insert(ctx, events.TypeReconciliationRequired, evt); err != nil {
		s.logger.Error("failed to enqueue reconciliation event", "booking_id", b.ID, "error", err)
	}
}
