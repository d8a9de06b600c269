package store

import (
	"context"
	"errors"
	"time"

	"github.com/codelensdev/codelens/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid status transition")

// Store is the data access interface. All database operations go through here.
//
// Ownership-scoped reads and deletes collapse "exists but belongs to someone
// else" and "does not exist" into ErrNotFound so callers cannot probe for
// foreign analysis ids.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateUserLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	CreateAnalysis(ctx context.Context, a *models.Analysis) error
	GetAnalysis(ctx context.Context, id uuid.UUID) (*models.Analysis, error)
	GetAnalysisForUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Analysis, error)
	ListAnalysesByUser(ctx context.Context, userID uuid.UUID) ([]*models.Analysis, error)
	UpdateAnalysisStatus(ctx context.Context, id uuid.UUID, status models.Status, opts ...AnalysisUpdateOption) error
	DeleteAnalysis(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
}

// AnalysisUpdate carries the optional fields of a status update.
type AnalysisUpdate struct {
	Result       *string
	ErrorMessage *string
}

type AnalysisUpdateOption func(*AnalysisUpdate)

// WithResult attaches the generated text on transition to Completed.
func WithResult(result string) AnalysisUpdateOption {
	return func(u *AnalysisUpdate) {
		u.Result = &result
	}
}

// WithErrorMessage attaches the failure reason on transition to Failed.
func WithErrorMessage(msg string) AnalysisUpdateOption {
	return func(u *AnalysisUpdate) {
		u.ErrorMessage = &msg
	}
}
