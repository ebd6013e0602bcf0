package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vedran77/pulseboard/internal/auth"
	"github.com/vedran77/pulseboard/internal/domain"
)

type contextKey string

const IdentityKey contextKey = "identity"

// Auth rejects requests without a valid bearer token and stores the caller's
// identity in the request context.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, "Missing or invalid token")
				return
			}

			identity, err := auth.Parse(strings.TrimPrefix(header, "Bearer "), jwtSecret)
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetIdentity extracts the caller identity from request context
func GetIdentity(ctx context.Context) domain.Identity {
	identity, _ := ctx.Value(IdentityKey).(domain.Identity)
	return identity
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"` + message + `"}}`))
}
