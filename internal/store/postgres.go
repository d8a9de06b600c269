package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codelensdev/codelens/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, full_name, email, password_hash, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.FullName, user.Email, user.PasswordHash, user.IsActive, user.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, full_name, email, password_hash, is_active, last_login_at, created_at
		 FROM users WHERE email = lower($1)`, email,
	).Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.IsActive, &u.LastLoginAt, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, full_name, email, password_hash, is_active, last_login_at, created_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.IsActive, &u.LastLoginAt, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) UpdateUserLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("update user last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Analyses ---

const analysisColumns = `id, user_id, code, language, task_type, status, result, error_message, created_at, completed_at`

func (s *PostgresStore) CreateAnalysis(ctx context.Context, a *models.Analysis) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analyses (id, user_id, code, language, task_type, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.UserID, a.Code, a.Language, a.TaskType, a.Status, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create analysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, id uuid.UUID) (*models.Analysis, error) {
	a, err := s.scanAnalysis(s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *PostgresStore) GetAnalysisForUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Analysis, error) {
	a, err := s.scanAnalysis(s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *PostgresStore) ListAnalysesByUser(ctx context.Context, userID uuid.UUID) ([]*models.Analysis, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var analyses []*models.Analysis
	for rows.Next() {
		var a models.Analysis
		if err := rows.Scan(&a.ID, &a.UserID, &a.Code, &a.Language, &a.TaskType, &a.Status,
			&a.Result, &a.ErrorMessage, &a.CreatedAt, &a.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		analyses = append(analyses, &a)
	}
	return analyses, rows.Err()
}

// validTransitions encodes the forward-only lifecycle:
// Pending -> Processing -> Completed | Failed.
var validTransitions = map[models.Status][]models.Status{
	models.StatusPending:    {models.StatusProcessing, models.StatusFailed},
	models.StatusProcessing: {models.StatusCompleted, models.StatusFailed},
}

func (s *PostgresStore) UpdateAnalysisStatus(ctx context.Context, id uuid.UUID, status models.Status, opts ...AnalysisUpdateOption) error {
	params := &AnalysisUpdate{}
	for _, opt := range opts {
		opt(params)
	}

	var current models.Status
	err := s.pool.QueryRow(ctx, `SELECT status FROM analyses WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get analysis status: %w", err)
	}

	valid := false
	for _, next := range validTransitions[current] {
		if next == status {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	query := `UPDATE analyses SET status = $2`
	args := []any{id, status}
	argIdx := 3

	if status.Terminal() {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, time.Now().UTC())
		argIdx++
	}
	if params.Result != nil {
		query += fmt.Sprintf(", result = $%d", argIdx)
		args = append(args, *params.Result)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}

	query += " WHERE id = $1"

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update analysis status: %w", err)
	}
	// The row can disappear between the status read and the write when the
	// owner deletes it mid-flight; surface that as not found.
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAnalysis(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM analyses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) scanAnalysis(row pgx.Row) (*models.Analysis, error) {
	var a models.Analysis
	err := row.Scan(&a.ID, &a.UserID, &a.Code, &a.Language, &a.TaskType, &a.Status,
		&a.Result, &a.ErrorMessage, &a.CreatedAt, &a.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan analysis: %w", err)
	}
	return &a, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
