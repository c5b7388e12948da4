package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"profile-enrichment/internal/domain/ports/adapter"
)

var _ adapter.RepositoryResolver = (*MultiResolver)(nil)

// MultiResolver tries each provider in order and returns the first answer.
// An explicit "owner/repo" already present in the task text short-circuits
// the providers entirely.
type MultiResolver struct {
	providers []adapter.RepositoryResolver
}

func NewMultiResolver(providers ...adapter.RepositoryResolver) *MultiResolver {
	return &MultiResolver{providers: providers}
}

var explicitRepo = regexp.MustCompile(`(?:github\.com/)?([A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+)`)

func (m *MultiResolver) Resolve(ctx context.Context, taskDescription string) (string, error) {
	if match := explicitRepo.FindStringSubmatch(taskDescription); match != nil {
		if repo, err := NormalizeRepository(match[1]); err == nil {
			return repo, nil
		}
	}

	var lastErr error
	for _, p := range m.providers {
		repo, err := p.Resolve(ctx, taskDescription)
		if err == nil {
			return repo, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no resolver provider configured")
	}
	return "", fmt.Errorf("resolve repository: %w", lastErr)
}
