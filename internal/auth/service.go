// Package auth handles user accounts and bearer-token issuance. The rest of
// the system only ever sees the validated identity extracted from a token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codelensdev/codelens/internal/config"
	"github.com/codelensdev/codelens/internal/store"
	"github.com/codelensdev/codelens/pkg/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is not active")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Identity is the validated caller identity carried through request contexts.
type Identity struct {
	UserID   uuid.UUID
	Email    string
	FullName string
}

// Claims is the JWT payload issued on register/login.
type Claims struct {
	Email    string `json:"email"`
	FullName string `json:"name"`
	jwt.RegisteredClaims
}

// Service implements registration, login and token handling.
type Service struct {
	store  store.Store
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewService creates a new auth Service.
func NewService(st store.Store, cfg config.AuthConfig) *Service {
	return &Service{
		store:  st,
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		ttl:    cfg.TokenTTL,
	}
}

// Register creates a new active account and returns the user with a signed token.
func (s *Service) Register(ctx context.Context, fullName, email, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if fullName == "" || email == "" || password == "" {
		return nil, "", fmt.Errorf("full name, email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		FullName:     fullName,
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", fmt.Errorf("creating user: %w", err)
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login verifies credentials and returns the user with a fresh token.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("looking up user: %w", err)
	}

	if !user.IsActive {
		return nil, "", ErrAccountInactive
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.store.UpdateUserLastLogin(ctx, user.ID, now); err != nil {
		return nil, "", fmt.Errorf("updating last login: %w", err)
	}
	user.LastLoginAt = &now

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// GetUser loads the account behind a validated identity.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.store.GetUserByID(ctx, id)
}

// IssueToken signs an HS256 JWT embedding the user's id, email and name.
func (s *Service) IssueToken(user *models.User) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Email:    user.Email,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// VerifyToken parses and validates a bearer token, returning the caller identity.
func (s *Service) VerifyToken(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &Identity{
		UserID:   userID,
		Email:    claims.Email,
		FullName: claims.FullName,
	}, nil
}
