// Package mock provides a scripted LLM provider for tests and offline runs.
package mock

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/GoCodeAlone/aura/provider"
)

const defaultResponse = `{"kind":"reply","text":"Hello! How can I help you today?"}`

// Reply is one scripted outcome.
type Reply struct {
	Content string
	Err     error
}

// MockProvider implements provider.Provider and provider.ImageGenerator.
// It returns scripted replies in order and cycles once the script is exhausted.
// Safe for concurrent use.
type MockProvider struct {
	mu      sync.Mutex
	replies []Reply
	idx     int
	calls   [][]provider.Message

	// ImageErr, when set, is returned by GenerateImage.
	ImageErr error
}

// New creates a MockProvider that cycles through the given responses.
func New(responses ...string) *MockProvider {
	replies := make([]Reply, 0, len(responses))
	for _, r := range responses {
		replies = append(replies, Reply{Content: r})
	}
	return &MockProvider{replies: replies}
}

// NewScripted creates a MockProvider from explicit replies, including errors.
func NewScripted(replies ...Reply) *MockProvider {
	return &MockProvider{replies: replies}
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string { return "mock" }

// Chat returns the next scripted reply, cycling through the queue.
func (m *MockProvider) Chat(ctx context.Context, messages []provider.Message) (*provider.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]provider.Message(nil), messages...))
	if len(m.replies) == 0 {
		return &provider.Response{Content: defaultResponse}, nil
	}
	r := m.replies[m.idx%len(m.replies)]
	m.idx++
	if r.Err != nil {
		return nil, r.Err
	}
	return &provider.Response{
		Content: r.Content,
		Usage:   provider.Usage{OutputTokens: len(r.Content)},
	}, nil
}

// GenerateImage returns a deterministic placeholder URL for prompt.
func (m *MockProvider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.ImageErr != nil {
		return "", m.ImageErr
	}
	return fmt.Sprintf("https://images.invalid/mock?prompt=%s", url.QueryEscape(prompt)), nil
}

// Calls returns the message lists passed to Chat so far.
func (m *MockProvider) Calls() [][]provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]provider.Message(nil), m.calls...)
}
