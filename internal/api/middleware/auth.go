package middleware

import (
	"net/http"
	"strings"

	"github.com/codelensdev/codelens/internal/api/response"
	"github.com/codelensdev/codelens/internal/auth"
)

// TokenVerifier validates a bearer token and returns the caller identity.
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Identity, error)
}

// Auth provides bearer-token authentication middleware.
type Auth struct {
	verifier TokenVerifier
}

// NewAuth creates a new Auth middleware.
func NewAuth(v TokenVerifier) *Auth {
	return &Auth{verifier: v}
}

// Require rejects requests without a valid bearer token and sets the
// caller identity in the request context.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		identity, err := a.verifier.VerifyToken(token)
		if err != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid or expired token", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), identity)))
	})
}

// Optional sets the caller identity when a valid bearer token is present and
// lets the request through anonymously otherwise. A malformed token is not an
// error here: submission is open to anonymous callers.
func (a *Auth) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := extractBearerToken(r); token != "" {
			if identity, err := a.verifier.VerifyToken(token); err == nil {
				r = r.WithContext(SetIdentity(r.Context(), identity))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
