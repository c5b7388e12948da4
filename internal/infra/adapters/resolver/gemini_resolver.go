package resolver

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"profile-enrichment/internal/domain/ports/adapter"
)

var _ adapter.RepositoryResolver = (*GeminiResolver)(nil)

// GeminiResolver extracts the repository target using the official SDK.
type GeminiResolver struct {
	client *genai.Client
	model  string
}

func NewGeminiResolver(ctx context.Context, apiKey, baseURL, model string) (*GeminiResolver, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiResolver{client: c, model: model}, nil
}

func (g *GeminiResolver) Resolve(ctx context.Context, taskDescription string) (string, error) {
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: fmt.Sprintf(extractionPrompt, taskDescription)}},
	}}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}

	text := ""
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		text = resp.Candidates[0].Content.Parts[0].Text
	}
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return NormalizeRepository(text)
}
