package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/therapy-practice-api/internal/identity"
)

func signedToken(t *testing.T, secret, subject, email, role string, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func serveIdentity(t *testing.T, secret, authHeader string) (*httptest.ResponseRecorder, identity.Actor) {
	t.Helper()
	var seen identity.Actor
	h := Identity(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = identity.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/bookings", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestIdentityGuestWithoutToken(t *testing.T) {
	rec, actor := serveIdentity(t, "secret", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, actor.IsAuthenticated())
}

func TestIdentityValidToken(t *testing.T) {
	token := signedToken(t, "secret", "user-1", "Asha@Example.com", "therapist", 5*time.Minute)
	rec, actor := serveIdentity(t, "secret", "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, identity.Actor{UserID: "user-1", Email: "asha@example.com", Role: identity.RoleTherapist}, actor)
}

func TestIdentityRejectsBadTokens(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
	}{
		{name: "wrong secret", secret: "secret", header: "Bearer " + signedToken(t, "other", "user-1", "", "admin", time.Minute)},
		{name: "expired", secret: "secret", header: "Bearer " + signedToken(t, "secret", "user-1", "", "admin", -time.Minute)},
		{name: "no subject", secret: "secret", header: "Bearer " + signedToken(t, "secret", "", "", "admin", time.Minute)},
		{name: "not bearer", secret: "secret", header: "Basic abc"},
		{name: "auth disabled", secret: "", header: "Bearer " + signedToken(t, "secret", "user-1", "", "admin", time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := serveIdentity(t, tt.secret, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRoleGuards(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	tests := []struct {
		name  string
		guard func(http.Handler) http.Handler
		role  string
		token bool
		want  int
	}{
		{name: "auth guest", guard: RequireAuth, want: http.StatusUnauthorized},
		{name: "auth user", guard: RequireAuth, role: "user", token: true, want: http.StatusOK},
		{name: "staff user", guard: RequireStaff, role: "user", token: true, want: http.StatusForbidden},
		{name: "staff therapist", guard: RequireStaff, role: "therapist", token: true, want: http.StatusOK},
		{name: "admin therapist", guard: RequireAdmin, role: "therapist", token: true, want: http.StatusForbidden},
		{name: "admin admin", guard: RequireAdmin, role: "admin", token: true, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Identity("secret")(tt.guard(ok))
			req := httptest.NewRequest(http.MethodGet, "/admin/bookings", nil)
			if tt.token {
				req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", "user-1", "", tt.role, time.Minute))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
