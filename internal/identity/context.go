// Package identity carries the verified caller through request handling.
// Core operations take an Actor explicitly; the context helpers only exist
// so HTTP middleware can hand the verified identity to handlers.
package identity

import (
	"context"
	"strings"
)

// Role is the authorization role asserted by a verified token.
type Role string

const (
	RoleGuest     Role = ""
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleTherapist Role = "therapist"
	// RoleSystem is used for internal transitions such as payment capture.
	RoleSystem Role = "system"
)

// ParseRole maps a token claim to a Role. Unknown values degrade to RoleUser.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleTherapist:
		return RoleTherapist
	default:
		return RoleUser
	}
}

// Actor is the verified identity performing an operation.
type Actor struct {
	UserID string
	Email  string
	Role   Role
}

// Guest returns the anonymous actor.
func Guest() Actor { return Actor{Role: RoleGuest} }

// System returns the internal actor used by server-side workflows.
func System() Actor { return Actor{UserID: "system", Role: RoleSystem} }

// IsAuthenticated reports whether the actor came from a verified token.
func (a Actor) IsAuthenticated() bool {
	return a.UserID != "" && a.Role != RoleGuest && a.Role != RoleSystem
}

// IsStaff reports whether the actor may operate the back-office.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleTherapist
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type ctxKey string

const actorKey ctxKey = "practice.actor"

// WithActor stores the verified actor in context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// FromContext returns the actor stored by the auth middleware, or Guest.
func FromContext(ctx context.Context) Actor {
	actor, ok := ctx.Value(actorKey).(Actor)
	if !ok {
		return Guest()
	}
	return actor
}
