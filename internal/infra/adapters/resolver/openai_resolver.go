package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"profile-enrichment/internal/domain"
	"profile-enrichment/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.RepositoryResolver = (*OpenAIResolver)(nil)

const extractionPrompt = `Extract the source repository name from this request: %q
Rules:
- Return ONLY the repository path in "owner/repo" format, no other text
- Handle various input formats:
  * Explicit paths: "owner/repo"
  * Organization mentions: "openai repository" -> "openai/openai"
  * Repository mentions: "openai's gpt-3 repo" -> "openai/gpt-3"
  * URLs: "https://github.com/owner/repo" -> "owner/repo"
- If only an organization is mentioned without a specific repo, use the
  organization name as both owner and repo
- If a URL is provided, extract only the owner/repo part`

// OpenAIResolver extracts an "owner/repo" target from free text via the
// Chat Completions API.
type OpenAIResolver struct {
	apiKey string
	base   string // e.g., https://api.openai.com/v1
	model  string
	client *http.Client
}

func NewOpenAIResolver(apiKey, baseURL, model string) (*OpenAIResolver, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIResolver{
		apiKey: apiKey,
		base:   strings.TrimSuffix(baseURL, "/"),
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (o *OpenAIResolver) Resolve(ctx context.Context, taskDescription string) (string, error) {
	reqBody := struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
	}{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf(extractionPrompt, taskDescription)},
		},
	}

	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/chat/completions", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai http %d", resp.StatusCode)
	}

	var payload struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	for _, c := range payload.Choices {
		if c.Message.Content != "" {
			return NormalizeRepository(c.Message.Content)
		}
	}
	return "", errors.New("openai: no choice content")
}

// NormalizeRepository cleans an LLM reply down to "owner/repo" and rejects
// anything that does not fit that shape.
func NormalizeRepository(raw string) (string, error) {
	repo := strings.TrimSpace(raw)
	repo = strings.Trim(repo, "`\"' \n")
	repo = strings.TrimPrefix(repo, "https://github.com/")
	repo = strings.TrimPrefix(repo, "github.com/")
	repo = strings.Trim(repo, "/")

	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("repository %q is not in owner/repo format: %w", repo, domain.ErrInvalidArgument)
	}
	return repo, nil
}
