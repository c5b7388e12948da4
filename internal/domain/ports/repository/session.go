package repository

import (
	"context"
	"time"

	"profile-enrichment/internal/domain/model"
)

// SessionStore is the durable append-only store of session snapshots,
// keyed by session id and ordered by version.
type SessionStore interface {
	// Append writes a new snapshot. The snapshot's version must be exactly
	// parent+1; if that (session_id, version) pair already exists the write
	// is rejected with domain.ErrVersionConflict so the caller can re-read
	// latest and retry. Backend unavailability surfaces as domain.ErrStorage.
	Append(ctx context.Context, snapshot *model.Session) error

	// Latest returns the highest-version snapshot, or domain.ErrNotFound.
	Latest(ctx context.Context, sessionID string) (*model.Session, error)

	// History returns the full audit trail, newest first.
	History(ctx context.Context, sessionID string) ([]*model.Session, error)

	// DeleteExpired removes all snapshots of sessions whose TTL passed
	// before the cutoff and reports how many sessions were collected.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
