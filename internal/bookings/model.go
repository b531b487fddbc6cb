package bookings

import (
	"fmt"
	"strings"
	"time"
)

// Status is the closed set of booking states exchanged with clients.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// transitions lists the legal next states. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// allowedFrom returns the states that may move into to.
func allowedFrom(to Status) []string {
	var out []string
	for _, from := range []Status{StatusPending, StatusConfirmed} {
		for _, next := range transitions[from] {
			if next == to {
				out = append(out, string(from))
			}
		}
	}
	return out
}

// SessionType is who attends the session.
type SessionType string

const (
	SessionIndividual SessionType = "individual"
	SessionCouples    SessionType = "couples"
	SessionFamily     SessionType = "family"
)

// ParseSessionType normalizes and validates a session type.
func ParseSessionType(raw string) (SessionType, error) {
	st := SessionType(strings.ToLower(strings.TrimSpace(raw)))
	switch st {
	case SessionIndividual, SessionCouples, SessionFamily:
		return st, nil
	}
	return "", fmt.Errorf("%w: session type %q", ErrInvalidInput, raw)
}

// SessionFormat is the communication medium.
type SessionFormat string

const (
	FormatChat  SessionFormat = "chat"
	FormatAudio SessionFormat = "audio"
	FormatVideo SessionFormat = "video"
)

// ParseSessionFormat normalizes and validates a session format.
func ParseSessionFormat(raw string) (SessionFormat, error) {
	f := SessionFormat(strings.ToLower(strings.TrimSpace(raw)))
	switch f {
	case FormatChat, FormatAudio, FormatVideo:
		return f, nil
	}
	return "", fmt.Errorf("%w: session format %q", ErrInvalidInput, raw)
}

// DurationMinutes is the booked length for a format.
func (f SessionFormat) DurationMinutes() int {
	switch f {
	case FormatChat:
		return 30
	case FormatAudio:
		return 45
	default:
		return 60
	}
}

// FreeConsultationMarker flags a zero-amount consultation in booking notes.
const FreeConsultationMarker = "[FREE_CONSULTATION]"

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Booking is one requested, confirmed, cancelled or completed appointment.
type Booking struct {
	ID                 string        `json:"id"`
	UserID             string        `json:"user_id,omitempty"`
	CustomerName       string        `json:"customer_name"`
	CustomerEmail      string        `json:"customer_email"`
	CustomerPhone      string        `json:"customer_phone,omitempty"`
	SessionType        SessionType   `json:"session_type"`
	SessionFormat      SessionFormat `json:"session_format"`
	DurationMinutes    int           `json:"duration_minutes"`
	ScheduledDate      string        `json:"scheduled_date"`
	ScheduledTime      string        `json:"scheduled_time"`
	Status             Status        `json:"status"`
	Notes              string        `json:"notes,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
}

// IsFreeConsultation reports whether the notes carry the free consultation marker.
func (b *Booking) IsFreeConsultation() bool {
	return strings.Contains(b.Notes, FreeConsultationMarker)
}

// StartsAt resolves the stored date and time in the practice location.
func (b *Booking) StartsAt(loc *time.Location) (time.Time, error) {
	return SlotStart(b.ScheduledDate, b.ScheduledTime, loc)
}

// OwnedBy reports whether the booking belongs to the given user or email.
func (b *Booking) OwnedBy(userID, email string) bool {
	if userID != "" && b.UserID == userID {
		return true
	}
	return email != "" && strings.EqualFold(b.CustomerEmail, email)
}

// SlotStart parses a practice-local date ("2006-01-02") and time ("15:04").
func SlotStart(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(dateLayout+" "+timeLayout, strings.TrimSpace(date)+" "+strings.TrimSpace(clock), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: slot %s %s", ErrInvalidInput, date, clock)
	}
	return t, nil
}

// CreateInput is the client's slot selection.
type CreateInput struct {
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	SessionType   string
	SessionFormat string
	ScheduledDate string
	ScheduledTime string
	Notes         string
}

// ListFilter narrows booking listings.
type ListFilter struct {
	UserID string
	Email  string
	Date   string
	Status Status
	Limit  int
}
