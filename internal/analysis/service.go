// Package analysis implements the job lifecycle engine: it creates analysis
// records, runs them against the LLM service in the background, and serves
// status, history and deletion queries.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codelensdev/codelens/internal/cache"
	"github.com/codelensdev/codelens/internal/llm"
	"github.com/codelensdev/codelens/internal/store"
	"github.com/codelensdev/codelens/pkg/models"
	"github.com/google/uuid"
)

// SubmitParams holds validated parameters for a new analysis.
type SubmitParams struct {
	Code     string
	Language models.Language
	TaskType models.TaskType
	UserID   *uuid.UUID // nil for anonymous submissions
}

// Service orchestrates the analysis lifecycle. Each submission runs on its
// own goroutine; sem bounds how many can talk to the LLM service at once.
// A job waiting on the semaphore is still observable as Pending.
type Service struct {
	store   store.Store
	llm     llm.Client
	cache   cache.Cache
	timeout time.Duration
	ttl     time.Duration
	sem     chan struct{}
}

// NewService creates a new Service. timeout bounds each LLM call; ttl is how
// long cached analysis views live; maxConcurrent caps in-flight workers.
func NewService(st store.Store, client llm.Client, ca cache.Cache, timeout, ttl time.Duration, maxConcurrent int) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Service{
		store:   st,
		llm:     client,
		cache:   ca,
		timeout: timeout,
		ttl:     ttl,
		sem:     make(chan struct{}, maxConcurrent),
	}
}

// Submit persists a Pending analysis and schedules background processing.
// It returns as soon as the record is durable; callers poll for the outcome.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*models.Analysis, error) {
	if params.Code == "" {
		return nil, fmt.Errorf("invalid submission: code is required")
	}

	a := &models.Analysis{
		ID:        uuid.New(),
		UserID:    params.UserID,
		Code:      params.Code,
		Language:  params.Language,
		TaskType:  params.TaskType,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateAnalysis(ctx, a); err != nil {
		return nil, fmt.Errorf("creating analysis: %w", err)
	}

	_ = s.cache.SetAnalysis(ctx, a, s.ttl)

	go s.process(a.ID)

	return a, nil
}

// process runs one analysis to a terminal state. It is the only writer of
// status transitions, and nothing it returns reaches the submitting request:
// its sole observable effect is the persisted record.
func (s *Service) process(id uuid.UUID) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	// Detached from the request context on purpose: a client disconnect
	// must not cancel a scheduled job.
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while processing analysis", "analysis_id", id, "error", r)
			s.fail(ctx, id, "internal processing error")
		}
	}()

	a, err := s.store.GetAnalysis(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		// Deleted between creation and pickup; nothing to do.
		return
	}
	if err != nil {
		slog.Error("loading analysis for processing", "analysis_id", id, "error", err)
		s.fail(ctx, id, "internal processing error")
		return
	}

	// Persist Processing before the call so a crash mid-flight leaves an
	// observable Processing record rather than a silently stuck Pending one.
	if err := s.transition(ctx, id, models.StatusProcessing); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		slog.Error("marking analysis as processing", "analysis_id", id, "error", err)
		s.fail(ctx, id, "internal processing error")
		return
	}

	llmCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.llm.Generate(llmCtx, a.TaskType, a.Code, a.Language)
	if err != nil {
		if errors.Is(err, llm.ErrUnknownTask) {
			s.fail(ctx, id, "unknown task type")
			return
		}
		slog.Warn("analysis failed", "analysis_id", id, "task", a.TaskType, "error", err)
		s.fail(ctx, id, err.Error())
		return
	}

	if err := s.transition(ctx, id, models.StatusCompleted, store.WithResult(result)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		slog.Error("marking analysis as completed", "analysis_id", id, "error", err)
		return
	}
	slog.Info("analysis completed", "analysis_id", id, "task", a.TaskType)
}

// fail forces a terminal Failed state. Best effort: the record may already
// be gone when the owner deleted it mid-flight.
func (s *Service) fail(ctx context.Context, id uuid.UUID, msg string) {
	if err := s.transition(ctx, id, models.StatusFailed, store.WithErrorMessage(msg)); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Error("marking analysis as failed", "analysis_id", id, "error", err)
	}
}

// transition updates the record and drops the cached view; the next poll
// re-reads Postgres and repopulates.
func (s *Service) transition(ctx context.Context, id uuid.UUID, status models.Status, opts ...store.AnalysisUpdateOption) error {
	if err := s.store.UpdateAnalysisStatus(ctx, id, status, opts...); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, cache.AnalysisKey(id))
	return nil
}

// GetStatus returns the public view of an analysis, id-only lookup, no
// ownership check. Polls are served from the cache when possible; a miss
// falls through to Postgres and refills the cache.
func (s *Service) GetStatus(ctx context.Context, id uuid.UUID) (*models.Analysis, error) {
	if a, ok, err := s.cache.GetAnalysis(ctx, id); err == nil && ok {
		return a, nil
	}

	a, err := s.store.GetAnalysis(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = s.cache.SetAnalysis(ctx, a, s.ttl)
	return a, nil
}

// History lists the caller's analyses, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID) ([]*models.Analysis, error) {
	return s.store.ListAnalysesByUser(ctx, userID)
}

// HistoryDetail returns the full record only when owned by userID;
// anything else is store.ErrNotFound.
func (s *Service) HistoryDetail(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Analysis, error) {
	return s.store.GetAnalysisForUser(ctx, id, userID)
}

// Delete removes the caller's analysis. Ownership mismatch and absence are
// both store.ErrNotFound.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	if err := s.store.DeleteAnalysis(ctx, id, userID); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, cache.AnalysisKey(id))
	return nil
}
