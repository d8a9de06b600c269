// Package llm is the gateway to the external LLM service that performs
// the actual code transformations.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/codelensdev/codelens/pkg/models"
)

// Sentinel errors for gateway failures. Each failure class ends up verbatim
// in the job's error message, so the messages are written for end users.
var (
	ErrUnreachable     = errors.New("LLM service unreachable; make sure the service is running")
	ErrTimeout         = errors.New("LLM request timed out")
	ErrCancelled       = errors.New("LLM request cancelled")
	ErrInvalidResponse = errors.New("empty or invalid response from LLM service")
	ErrUnknownTask     = errors.New("unknown task type")
)

// BadStatusError indicates the LLM service answered with a non-success HTTP status.
type BadStatusError struct {
	StatusCode int
}

func (e *BadStatusError) Error() string {
	return fmt.Sprintf("LLM service returned status %d", e.StatusCode)
}

// Client is the interface for invoking the LLM service. One round trip per
// call; no retries. Failures are classified into the sentinel errors above.
type Client interface {
	Generate(ctx context.Context, task models.TaskType, code string, language models.Language) (string, error)
}

// taskEndpoints maps each task kind to its fixed sub-path on the LLM service.
// Kept exhaustive over models.TaskType; Generate rejects anything else.
var taskEndpoints = map[models.TaskType]string{
	models.TaskUnitTest:        "/generate/unit-test",
	models.TaskCodeExplanation: "/generate/code-explanation",
	models.TaskUITest:          "/generate/ui-test",
}

type generateRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type generateResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
	Error   string `json:"error"`
}

// HTTPClient implements Client against the LLM service's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new LLM service client. The timeout bounds the
// whole round trip; there is no retry on top of it.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Generate(ctx context.Context, task models.TaskType, code string, language models.Language) (string, error) {
	endpoint, ok := taskEndpoints[task]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}

	body, err := json.Marshal(generateRequest{Code: code, Language: string(language)})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &BadStatusError{StatusCode: resp.StatusCode}
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		slog.Warn("undecodable LLM service response", "endpoint", endpoint, "error", err)
		return "", ErrInvalidResponse
	}

	if !genResp.Success {
		if genResp.Error == "" {
			return "", ErrInvalidResponse
		}
		return "", errors.New(genResp.Error)
	}
	if genResp.Result == "" {
		return "", ErrInvalidResponse
	}

	return genResp.Result, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	// A cancelled context is the caller giving up, not the service being
	// slow; keep the two apart in the persisted error message.
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
