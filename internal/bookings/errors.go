package bookings

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotConflict is returned when a non-cancelled booking already holds the slot.
	ErrSlotConflict = errors.New("bookings: slot already taken")

	// ErrNotFound is returned when a booking does not exist.
	ErrNotFound = errors.New("bookings: not found")

	// ErrInvalidInput wraps validation failures on booking requests.
	ErrInvalidInput = errors.New("bookings: invalid input")

	// ErrSlotInPast is returned when the requested slot has already started.
	ErrSlotInPast = errors.New("bookings: slot is in the past")

	// ErrForbidden is returned when the actor may not perform the operation.
	ErrForbidden = errors.New("bookings: forbidden")
)

// InvalidTransitionError reports an illegal status change. It is never auto-corrected.
type InvalidTransitionError struct {
	BookingID string
	From      Status
	To        Status
	// Terminal is set when From is a state no transition may leave.
	Terminal bool
}

func (e *InvalidTransitionError) Error() string {
	if e.Terminal {
		return fmt.Sprintf("bookings: booking %s is %s and cannot move to %s", e.BookingID, e.From, e.To)
	}
	return fmt.Sprintf("bookings: invalid transition %s -> %s for %s", e.From, e.To, e.BookingID)
}
