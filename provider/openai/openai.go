// Package openai provides an LLM backend on the OpenAI Chat Completions and
// Images APIs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GoCodeAlone/aura/provider"
)

const (
	defaultModel      = "gpt-4o"
	defaultImageModel = "dall-e-3"
	defaultBaseURL    = "https://api.openai.com/v1"
)

// Provider is an OpenAI-backed provider.Provider and provider.ImageGenerator.
type Provider struct {
	apiKey     string
	model      string
	imageModel string
	baseURL    string
	client     *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithImageModel overrides the image model.
func WithImageModel(m string) Option {
	return func(p *Provider) {
		if m != "" {
			p.imageModel = m
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// New creates an OpenAI provider with the given API key and model.
// If model is empty, defaults to gpt-4o.
func New(apiKey, model string, opts ...Option) *Provider {
	if model == "" {
		model = defaultModel
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      model,
		imageModel: defaultImageModel,
		baseURL:    defaultBaseURL,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Chat sends a non-streaming request and returns the complete response.
func (p *Provider) Chat(ctx context.Context, messages []provider.Message) (*provider.Response, error) {
	req := chatRequest{Model: p.model}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	var cr chatResponse
	if err := p.post(ctx, "/chat/completions", req, &cr); err != nil {
		return nil, err
	}
	if cr.Error != nil {
		return nil, fmt.Errorf("openai API error: %s: %s", cr.Error.Type, cr.Error.Message)
	}
	resp := &provider.Response{
		Usage: provider.Usage{
			InputTokens:  cr.Usage.PromptTokens,
			OutputTokens: cr.Usage.CompletionTokens,
		},
	}
	if len(cr.Choices) > 0 {
		resp.Content = cr.Choices[0].Message.Content
	}
	return resp, nil
}

// GenerateImage creates one image for prompt and returns its URL.
func (p *Provider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	req := imageRequest{Model: p.imageModel, Prompt: prompt, N: 1, Size: "1024x1024"}
	var ir imageResponse
	if err := p.post(ctx, "/images/generations", req, &ir); err != nil {
		return "", err
	}
	if ir.Error != nil {
		return "", fmt.Errorf("openai API error: %s: %s", ir.Error.Type, ir.Error.Message)
	}
	if len(ir.Data) == 0 || ir.Data[0].URL == "" {
		return "", fmt.Errorf("openai: image response carried no url")
	}
	return ir.Data[0].URL, nil
}

func (p *Provider) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("openai: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("openai: http: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("openai: read response: %w", err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		if httpResp.StatusCode != http.StatusOK {
			return fmt.Errorf("openai: unexpected status %d: %s", httpResp.StatusCode, string(respBody))
		}
		return fmt.Errorf("openai: decode response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		// The decoded body usually carries an error object; surface it over the bare status.
		if msg := errorMessage(out); msg != "" {
			return fmt.Errorf("openai API error: %s", msg)
		}
		return fmt.Errorf("openai: unexpected status %d: %s", httpResp.StatusCode, string(respBody))
	}
	return nil
}

func errorMessage(out any) string {
	switch v := out.(type) {
	case *chatResponse:
		if v.Error != nil {
			return v.Error.Type + ": " + v.Error.Message
		}
	case *imageResponse:
		if v.Error != nil {
			return v.Error.Type + ": " + v.Error.Message
		}
	}
	return ""
}
