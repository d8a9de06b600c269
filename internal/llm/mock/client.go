// Package mock provides a configurable llm.Client for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/codelensdev/codelens/internal/llm"
	"github.com/codelensdev/codelens/pkg/models"
)

// Client satisfies llm.Client for testing. Safe for concurrent use.
type Client struct {
	GenerateFunc func(ctx context.Context, task models.TaskType, code string, language models.Language) (string, error)

	mu    sync.Mutex
	calls []Call
}

type Call struct {
	Task     models.TaskType
	Code     string
	Language models.Language
}

func (c *Client) Generate(ctx context.Context, task models.TaskType, code string, language models.Language) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Task: task, Code: code, Language: language})
	c.mu.Unlock()
	if c.GenerateFunc != nil {
		return c.GenerateFunc(ctx, task, code, language)
	}
	return "", nil
}

// Calls returns a copy of all recorded invocations.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// NewClient returns a Client producing a canned successful result.
func NewClient() *Client {
	return &Client{
		GenerateFunc: func(_ context.Context, task models.TaskType, _ string, language models.Language) (string, error) {
			return fmt.Sprintf("mock %s output for %s code", task, language), nil
		},
	}
}

// NewFailingClient returns a Client that always returns the given error.
func NewFailingClient(err error) *Client {
	return &Client{
		GenerateFunc: func(_ context.Context, _ models.TaskType, _ string, _ models.Language) (string, error) {
			return "", err
		},
	}
}

// NewBlockingClient returns a Client that blocks until its context is cancelled.
func NewBlockingClient() *Client {
	return &Client{
		GenerateFunc: func(ctx context.Context, _ models.TaskType, _ string, _ models.Language) (string, error) {
			<-ctx.Done()
			return "", llm.ErrTimeout
		},
	}
}

// Compile-time check that Client implements llm.Client.
var _ llm.Client = (*Client)(nil)
