package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	mw "github.com/codelensdev/codelens/internal/api/middleware"
	"github.com/codelensdev/codelens/internal/api/response"
	"github.com/codelensdev/codelens/internal/auth"
	"github.com/codelensdev/codelens/internal/store"
	"github.com/codelensdev/codelens/pkg/models"
	"github.com/google/uuid"
)

// AuthService defines the account operations the handlers depend on.
type AuthService interface {
	Register(ctx context.Context, fullName, email, password string) (*models.User, string, error)
	Login(ctx context.Context, email, password string) (*models.User, string, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type userView struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type authResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

func toUserView(u *models.User) userView {
	return userView{ID: u.ID, FullName: u.FullName, Email: u.Email, CreatedAt: u.CreatedAt}
}

// NewRegisterHandler returns an http.HandlerFunc for POST /api/v1/auth/register.
func NewRegisterHandler(svc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FullName string `json:"fullName"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.FullName == "" || req.Email == "" || req.Password == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"fullName, email and password are required", nil)
			return
		}

		user, token, err := svc.Register(r.Context(), req.FullName, req.Email, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrEmailTaken) {
				response.Error(w, http.StatusConflict, "EMAIL_TAKEN",
					"This email address is already registered", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to register user", nil)
			return
		}

		response.Created(w, authResponse{Token: token, User: toUserView(user)})
	}
}

// NewLoginHandler returns an http.HandlerFunc for POST /api/v1/auth/login.
func NewLoginHandler(svc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		user, token, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidCredentials):
				response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS",
					"Invalid email or password", nil)
			case errors.Is(err, auth.ErrAccountInactive):
				response.Error(w, http.StatusForbidden, "ACCOUNT_INACTIVE",
					"This account is not active", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to log in", nil)
			}
			return
		}

		response.JSON(w, authResponse{Token: token, User: toUserView(user)})
	}
}

// NewMeHandler returns an http.HandlerFunc for GET /api/v1/auth/me.
func NewMeHandler(svc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := mw.GetIdentity(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing identity", nil)
			return
		}

		user, err := svc.GetUser(r.Context(), identity.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "User not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load user", nil)
			return
		}

		response.JSON(w, toUserView(user))
	}
}
