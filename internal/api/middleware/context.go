package middleware

import (
	"context"
	"net/http"

	"github.com/codelensdev/codelens/internal/auth"
)

type contextKey string

const identityKey contextKey = "identity"

func SetIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the validated caller identity, if any. Handlers behind
// Auth.Require can rely on ok being true.
func GetIdentity(r *http.Request) (*auth.Identity, bool) {
	id, ok := r.Context().Value(identityKey).(*auth.Identity)
	return id, ok
}
