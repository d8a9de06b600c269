// Package models contains shared data models used across the CodeLens codebase.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Language is a programming language accepted for analysis.
type Language string

const (
	LanguageCSharp Language = "csharp"
	LanguagePython Language = "python"
	LanguageJava   Language = "java"
)

// ParseLanguage normalizes and validates a user-supplied language string.
// Input is case-insensitive; "c#" is accepted as an alias for "csharp".
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csharp", "c#":
		return LanguageCSharp, nil
	case "python":
		return LanguagePython, nil
	case "java":
		return LanguageJava, nil
	default:
		return "", fmt.Errorf("unsupported language: %q", s)
	}
}

// TaskType is the requested code transformation.
type TaskType string

const (
	TaskUnitTest        TaskType = "unit_test"
	TaskCodeExplanation TaskType = "code_explanation"
	TaskUITest          TaskType = "ui_test"
)

// ParseTaskType normalizes and validates a user-supplied task type.
// Input is case-insensitive and underscores are ignored, so "unittest",
// "unit_test" and "UnitTest" all map to TaskUnitTest.
func ParseTaskType(s string) (TaskType, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "") {
	case "unittest":
		return TaskUnitTest, nil
	case "codeexplanation":
		return TaskCodeExplanation, nil
	case "uitest":
		return TaskUITest, nil
	default:
		return "", fmt.Errorf("unsupported task type: %q", s)
	}
}

// Status is the lifecycle state of an analysis. Transitions only move
// forward: Pending -> Processing -> Completed or Failed.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// Terminal reports whether the status is Completed or Failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Analysis is one submitted code-analysis job and its tracked outcome.
// Code, Language, TaskType and CreatedAt are immutable after creation;
// only the lifecycle engine mutates Status, Result, ErrorMessage and
// CompletedAt. UserID is nil for anonymous submissions.
type Analysis struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	UserID       *uuid.UUID `db:"user_id"       json:"user_id,omitempty"`
	Code         string     `db:"code"          json:"code"`
	Language     Language   `db:"language"      json:"language"`
	TaskType     TaskType   `db:"task_type"     json:"task_type"`
	Status       Status     `db:"status"        json:"status"`
	Result       *string    `db:"result"        json:"result,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
}

const previewLen = 100

// CodePreview returns the first 100 characters of the submitted code,
// with "..." appended when the code is longer than that.
func (a *Analysis) CodePreview() string {
	runes := []rune(a.Code)
	if len(runes) <= previewLen {
		return a.Code
	}
	return string(runes[:previewLen]) + "..."
}
