package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"profile-enrichment/internal/domain"
	"profile-enrichment/internal/domain/model"
	"profile-enrichment/internal/domain/ports/repository"
)

var _ repository.SessionStore = (*sessionRepo)(nil)

// sessionRepo persists session snapshots append-only. The composite primary
// key (session_id, version) is the conditional-write guard: a writer that
// derived from a stale latest collides on insert instead of overwriting.
type sessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *sessionRepo {
	return &sessionRepo{pool: pool}
}

const uniqueViolation = "23505"

func (r *sessionRepo) Append(ctx context.Context, s *model.Session) error {
	messages, err := json.Marshal(s.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	outputs, err := json.Marshal(s.Outputs)
	if err != nil {
		return fmt.Errorf("marshal stage outputs: %w", err)
	}

	const q = `
INSERT INTO session_snapshots (session_id, version, status, "limit", messages, stage_outputs, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err = r.pool.Exec(ctx, q,
		s.SessionID, s.Version, string(s.Status), s.Limit, messages, outputs, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("session %s version %d: %w", s.SessionID, s.Version, domain.ErrVersionConflict)
		}
		return fmt.Errorf("append snapshot: %v: %w", err, domain.ErrStorage)
	}
	return nil
}

func (r *sessionRepo) Latest(ctx context.Context, sessionID string) (*model.Session, error) {
	const q = `
SELECT session_id, version, status, "limit", messages, stage_outputs, expires_at, created_at
FROM session_snapshots
WHERE session_id = $1
ORDER BY version DESC
LIMIT 1;`

	s, err := scanSession(r.pool.QueryRow(ctx, q, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("latest snapshot: %v: %w", err, domain.ErrStorage)
	}
	return s, nil
}

func (r *sessionRepo) History(ctx context.Context, sessionID string) ([]*model.Session, error) {
	const q = `
SELECT session_id, version, status, "limit", messages, stage_outputs, expires_at, created_at
FROM session_snapshots
WHERE session_id = $1
ORDER BY version DESC;`

	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session history: %v: %w", err, domain.ErrStorage)
	}
	defer rows.Close()

	var out []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("session history scan: %v: %w", err, domain.ErrStorage)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session history rows: %v: %w", err, domain.ErrStorage)
	}
	if len(out) == 0 {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	// Count distinct sessions first so the caller learns how many runs were
	// collected, not how many snapshot rows.
	const countQ = `SELECT COUNT(DISTINCT session_id) FROM session_snapshots WHERE expires_at < $1;`
	var sessions int64
	if err := r.pool.QueryRow(ctx, countQ, cutoff).Scan(&sessions); err != nil {
		return 0, fmt.Errorf("count expired sessions: %v: %w", err, domain.ErrStorage)
	}
	if sessions == 0 {
		return 0, nil
	}

	const deleteQ = `DELETE FROM session_snapshots WHERE expires_at < $1;`
	if _, err := r.pool.Exec(ctx, deleteQ, cutoff); err != nil {
		return 0, fmt.Errorf("delete expired sessions: %v: %w", err, domain.ErrStorage)
	}
	return sessions, nil
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var (
		s        model.Session
		status   string
		messages []byte
		outputs  []byte
	)
	if err := row.Scan(&s.SessionID, &s.Version, &status, &s.Limit, &messages, &outputs, &s.ExpiresAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Status = model.SessionStatus(status)
	if err := json.Unmarshal(messages, &s.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	if err := json.Unmarshal(outputs, &s.Outputs); err != nil {
		return nil, fmt.Errorf("unmarshal stage outputs: %w", err)
	}
	return &s, nil
}
