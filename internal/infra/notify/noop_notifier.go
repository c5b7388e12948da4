package notify

import (
	"context"

	"github.com/rs/zerolog"

	"profile-enrichment/internal/domain/model"
	"profile-enrichment/internal/domain/ports/adapter"
)

var _ adapter.CompletionNotifier = (*NoopNotifier)(nil)

// NoopNotifier logs outcomes instead of delivering them, for local/dev runs.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	ntfLog := logger.With().Str("component", "NoopNotifier").Logger()
	return &NoopNotifier{log: &ntfLog}
}

func (n *NoopNotifier) NotifyCompleted(ctx context.Context, sessionID string, result *model.MergedResult) error {
	n.log.Info().
		Str("session_id", sessionID).
		Str("target", result.TargetName).
		Int("entities", result.TotalEntities).
		Msg("session completed")
	return nil
}

func (n *NoopNotifier) NotifyFailed(ctx context.Context, sessionID string, category string, reason string) error {
	n.log.Info().
		Str("session_id", sessionID).
		Str("category", category).
		Str("reason", reason).
		Msg("session failed")
	return nil
}
