package capability

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/GoCodeAlone/aura/provider"
)

// ImageProvider exposes an image-capable LLM backend as the image capability.
type ImageProvider struct {
	gen provider.ImageGenerator
}

// NewImageProvider wraps gen.
func NewImageProvider(gen provider.ImageGenerator) *ImageProvider {
	return &ImageProvider{gen: gen}
}

// Name returns the provider identifier.
func (p *ImageProvider) Name() string { return "image:" + p.gen.Name() }

// Invoke generates an image for the "prompt" field.
func (p *ImageProvider) Invoke(ctx context.Context, req Request) (json.RawMessage, error) {
	prompt := strings.TrimSpace(req.FieldOr("prompt", req.RawText))
	if prompt == "" {
		return nil, Rejected("empty image prompt")
	}
	url, err := p.gen.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, Unavailable(err.Error())
	}
	if url == "" {
		return nil, Unavailable("image backend returned no image")
	}
	return Encode(GeneratedImage{ImageURL: url, Prompt: prompt})
}
