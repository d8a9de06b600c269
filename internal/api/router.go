package api

import (
	"net/http"

	mw "github.com/codelensdev/codelens/internal/api/middleware"
	"github.com/codelensdev/codelens/internal/api/response"
	"github.com/go-chi/chi/v5"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	RegisterHandler http.HandlerFunc
	LoginHandler    http.HandlerFunc
	MeHandler       http.HandlerFunc

	SubmitHandler        http.HandlerFunc
	GetStatusHandler     http.HandlerFunc
	HistoryHandler       http.HandlerFunc
	HistoryDetailHandler http.HandlerFunc
	DeleteHistoryHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Post("/api/v1/auth/register", orNotImplemented(deps.RegisterHandler))
	r.Post("/api/v1/auth/login", orNotImplemented(deps.LoginHandler))

	// Submission is open to anonymous callers; a valid token attaches ownership.
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Optional)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/analysis/submit", orNotImplemented(deps.SubmitHandler))
	})

	// Status polling is public by id.
	r.Get("/api/v1/analysis/{analysisID}", orNotImplemented(deps.GetStatusHandler))

	// Owner-only routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Require)

		r.Get("/api/v1/auth/me", orNotImplemented(deps.MeHandler))

		r.Get("/api/v1/analysis/history", orNotImplemented(deps.HistoryHandler))
		r.Get("/api/v1/analysis/history/{analysisID}", orNotImplemented(deps.HistoryDetailHandler))
		r.Delete("/api/v1/analysis/history/{analysisID}", orNotImplemented(deps.DeleteHistoryHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
