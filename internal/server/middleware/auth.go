package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prismkeys/prism/internal/model"
	"github.com/prismkeys/prism/internal/service"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"

	// SessionCookie carries the dashboard session token.
	SessionCookie = "prism_session"
)

// SessionValidator verifies dashboard sessions. *service.AuthService
// implements it.
type SessionValidator interface {
	ValidateSession(token string) (*service.Principal, error)
	IsVIP(userID string) bool
}

// Authenticate returns an HTTP middleware that validates the dashboard
// session. It accepts, in order:
//
//  1. the prism_session cookie set by the OAuth callback
//  2. a Bearer token in the Authorization header (for scripts)
//
// On success, a Principal is attached to the request context. On failure,
// a 401 JSON error response is returned.
func Authenticate(auth SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(SessionCookie); err == nil {
				token = c.Value
			}
			if token == "" {
				if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
					token = strings.TrimPrefix(h, "Bearer ")
				}
			}
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			principal, err := auth.ValidateSession(token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireVIP returns an HTTP middleware that admits only allowlisted
// dashboard users. It must be used after Authenticate in the middleware chain.
func RequireVIP(auth SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil || !auth.IsVIP(principal.UserID) {
				writeAuthError(w, http.StatusForbidden, "Access denied. VIP users only.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *service.Principal) context.Context {
	return context.WithValue(ctx, AuthPrincipalKey, p)
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *service.Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*service.Principal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{Message: message})
}
