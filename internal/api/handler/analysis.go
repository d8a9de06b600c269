// Package handler contains the HTTP handlers for the CodeLens API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/codelensdev/codelens/internal/analysis"
	mw "github.com/codelensdev/codelens/internal/api/middleware"
	"github.com/codelensdev/codelens/internal/api/response"
	"github.com/codelensdev/codelens/internal/store"
	"github.com/codelensdev/codelens/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AnalysisService defines the lifecycle operations the handlers depend on.
type AnalysisService interface {
	Submit(ctx context.Context, params analysis.SubmitParams) (*models.Analysis, error)
	GetStatus(ctx context.Context, id uuid.UUID) (*models.Analysis, error)
	History(ctx context.Context, userID uuid.UUID) ([]*models.Analysis, error)
	HistoryDetail(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Analysis, error)
	Delete(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
}

type submitResponse struct {
	AnalysisID uuid.UUID `json:"analysisId"`
	Message    string    `json:"message"`
}

type statusResponse struct {
	AnalysisID   uuid.UUID  `json:"analysisId"`
	Status       string     `json:"status"`
	Language     string     `json:"language"`
	TaskType     string     `json:"taskType"`
	Result       *string    `json:"result,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

type historyItem struct {
	ID          uuid.UUID  `json:"id"`
	Language    string     `json:"language"`
	TaskType    string     `json:"taskType"`
	Status      string     `json:"status"`
	CodePreview string     `json:"codePreview"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type detailResponse struct {
	ID           uuid.UUID  `json:"id"`
	Code         string     `json:"code"`
	Language     string     `json:"language"`
	TaskType     string     `json:"taskType"`
	Status       string     `json:"status"`
	Result       *string    `json:"result,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/analysis/submit.
// Validation happens before any record is created; the analysis itself runs
// in the background and the response carries only the id to poll.
func NewSubmitHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code     string `json:"code"`
			Language string `json:"language"`
			TaskType string `json:"taskType"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Code == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "code is required", nil)
			return
		}

		language, err := models.ParseLanguage(req.Language)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}

		taskType, err := models.ParseTaskType(req.TaskType)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}

		var userID *uuid.UUID
		if identity, ok := mw.GetIdentity(r); ok {
			userID = &identity.UserID
		}

		a, err := svc.Submit(r.Context(), analysis.SubmitParams{
			Code:     req.Code,
			Language: language,
			TaskType: taskType,
			UserID:   userID,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to create analysis", nil)
			return
		}

		response.Accepted(w, submitResponse{
			AnalysisID: a.ID,
			Message:    "analysis started",
		})
	}
}

// NewGetStatusHandler returns an http.HandlerFunc for GET /api/v1/analysis/{analysisID}.
// Public by id; no ownership check.
func NewGetStatusHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAnalysisID(w, r)
		if !ok {
			return
		}

		a, err := svc.GetStatus(r.Context(), id)
		if err != nil {
			writeAnalysisError(w, err)
			return
		}

		response.JSON(w, statusResponse{
			AnalysisID:   a.ID,
			Status:       string(a.Status),
			Language:     string(a.Language),
			TaskType:     string(a.TaskType),
			Result:       a.Result,
			ErrorMessage: a.ErrorMessage,
			CreatedAt:    a.CreatedAt,
			CompletedAt:  a.CompletedAt,
		})
	}
}

// NewHistoryHandler returns an http.HandlerFunc for GET /api/v1/analysis/history.
func NewHistoryHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := mw.GetIdentity(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing identity", nil)
			return
		}

		analyses, err := svc.History(r.Context(), identity.UserID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list history", nil)
			return
		}

		items := make([]historyItem, 0, len(analyses))
		for _, a := range analyses {
			items = append(items, historyItem{
				ID:          a.ID,
				Language:    string(a.Language),
				TaskType:    string(a.TaskType),
				Status:      string(a.Status),
				CodePreview: a.CodePreview(),
				CreatedAt:   a.CreatedAt,
				CompletedAt: a.CompletedAt,
			})
		}
		response.JSON(w, items)
	}
}

// NewHistoryDetailHandler returns an http.HandlerFunc for GET /api/v1/analysis/history/{analysisID}.
// Owner-only; a foreign id reads as not found.
func NewHistoryDetailHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := mw.GetIdentity(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing identity", nil)
			return
		}

		id, ok := parseAnalysisID(w, r)
		if !ok {
			return
		}

		a, err := svc.HistoryDetail(r.Context(), id, identity.UserID)
		if err != nil {
			writeAnalysisError(w, err)
			return
		}

		response.JSON(w, detailResponse{
			ID:           a.ID,
			Code:         a.Code,
			Language:     string(a.Language),
			TaskType:     string(a.TaskType),
			Status:       string(a.Status),
			Result:       a.Result,
			ErrorMessage: a.ErrorMessage,
			CreatedAt:    a.CreatedAt,
			CompletedAt:  a.CompletedAt,
		})
	}
}

// NewDeleteHistoryHandler returns an http.HandlerFunc for DELETE /api/v1/analysis/history/{analysisID}.
func NewDeleteHistoryHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := mw.GetIdentity(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing identity", nil)
			return
		}

		id, ok := parseAnalysisID(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), id, identity.UserID); err != nil {
			writeAnalysisError(w, err)
			return
		}

		response.JSON(w, map[string]string{"message": "analysis deleted"})
	}
}

func parseAnalysisID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "analysisID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid analysis id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeAnalysisError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Analysis not found", nil)
		return
	}
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
}
