package adapter

import (
	"context"

	"profile-enrichment/internal/domain/model"
)

// RepositoryResolver extracts a concrete "owner/repo" target from a
// free-text task description. Implementations are LLM-backed.
type RepositoryResolver interface {
	Resolve(ctx context.Context, taskDescription string) (string, error)
}

// CodeHostAdapter is the stage boundary to the source-code-hosting API.
type CodeHostAdapter interface {
	// ValidateRepository reports whether the repository exists and is
	// accessible. A reachable-but-missing repo returns (false, nil);
	// transport failures return an error.
	ValidateRepository(ctx context.Context, repo string) (bool, error)
	FetchContributors(ctx context.Context, repo string, limit int) ([]model.Contributor, error)
}

// SocialProfileAdapter is the stage boundary to the professional-network
// lookup. FetchByURL serves entities with a known profile reference;
// SearchByName is the fallback for everyone else.
type SocialProfileAdapter interface {
	FetchByURL(ctx context.Context, profileURL string) (*model.SocialProfile, error)
	SearchByName(ctx context.Context, name string) (*model.SocialProfile, error)
}

// CompletionNotifier receives terminal session outcomes, best effort.
type CompletionNotifier interface {
	NotifyCompleted(ctx context.Context, sessionID string, result *model.MergedResult) error
	NotifyFailed(ctx context.Context, sessionID string, category string, reason string) error
}
