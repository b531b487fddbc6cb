package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/therapy-practice-api/internal/http/apiutil"
	"github.com/wolfman30/therapy-practice-api/internal/identity"
)

// Claims is the identity token issued by the auth provider.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Identity verifies an optional HMAC-signed bearer token and stores the
// resulting identity.Actor in the request context. Requests without a token
// continue as guests; a present but invalid token is rejected.
func Identity(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				next.ServeHTTP(w, r.WithContext(identity.WithActor(r.Context(), identity.Guest())))
				return
			}
			if secret == "" {
				apiutil.WriteError(w, http.StatusUnauthorized, "auth disabled")
				return
			}
			if !strings.HasPrefix(auth, "Bearer ") {
				apiutil.WriteError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}
			actor, err := parseActor(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				apiutil.WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithActor(r.Context(), actor)))
		})
	}
}

func parseActor(secret, tokenString string) (identity.Actor, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return identity.Actor{}, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return identity.Actor{}, jwt.ErrTokenInvalidClaims
	}
	return identity.Actor{
		UserID: claims.Subject,
		Email:  strings.ToLower(strings.TrimSpace(claims.Email)),
		Role:   identity.ParseRole(claims.Role),
	}, nil
}

// RequireAuth rejects guests.
func RequireAuth(next http.Handler) http.Handler {
	return guard(func(a identity.Actor) bool { return a.IsAuthenticated() }, next)
}

// RequireStaff admits admins and therapists.
func RequireStaff(next http.Handler) http.Handler {
	return guard(func(a identity.Actor) bool { return a.IsAuthenticated() && a.IsStaff() }, next)
}

// RequireAdmin admits admins only.
func RequireAdmin(next http.Handler) http.Handler {
	return guard(func(a identity.Actor) bool { return a.IsAuthenticated() && a.IsAdmin() }, next)
}

func guard(allowed func(identity.Actor) bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := identity.FromContext(r.Context())
		if !actor.IsAuthenticated() {
			apiutil.WriteError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !allowed(actor) {
			apiutil.WriteError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
