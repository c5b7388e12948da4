package model

import (
	"time"

	"profile-enrichment/internal/domain"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Stage is the closed set of workflow stages. Routing switches over this type
// exhaustively; adding a stage is a compile-time change, not a new string.
type Stage string

const (
	StageResolveRepository Stage = "repository-resolution"
	StageFetchContributors Stage = "contributor-fetch"
	StageEnrichSocial      Stage = "social-enrichment"
	StageMerge             Stage = "merge"
)

type MessageType string

const (
	MessageHuman  MessageType = "human"
	MessageSystem MessageType = "system"
	MessageStage  MessageType = "stage"
)

// Message is one entry in a session's append-only transcript.
type Message struct {
	Content   string            `json:"content"`
	Type      MessageType       `json:"type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// StageOutputs holds each stage's result, written at most once per stage.
// A nil field means the stage has not run; Secondary carries an explicit
// Skipped marker when the enrichment stage was bypassed.
type StageOutputs struct {
	Resolution *ResolutionResult `json:"resolution,omitempty"`
	Primary    *ContributorBatch `json:"primary,omitempty"`
	Secondary  *SocialBatch      `json:"secondary,omitempty"`
	Merged     *MergedResult     `json:"merged,omitempty"`
}

// Session is one immutable snapshot of an enrichment run. Progress is
// recorded by appending a higher-version snapshot, never by mutating one.
type Session struct {
	SessionID string        `json:"session_id"`
	Version   int64         `json:"version"`
	Messages  []Message     `json:"messages"`
	Outputs   StageOutputs  `json:"stage_outputs"`
	Status    SessionStatus `json:"status"`
	Limit     int           `json:"limit"`
	ExpiresAt time.Time     `json:"ttl"`
	CreatedAt time.Time     `json:"created_at"`
}

func NewSession(id, taskDescription string, limit int, ttl time.Duration) (*Session, error) {
	if id == "" || taskDescription == "" {
		return nil, domain.ErrInvalidArgument
	}
	if limit < 1 || limit > 100 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Session{
		SessionID: id,
		Version:   0,
		Messages: []Message{{
			Content:   taskDescription,
			Type:      MessageHuman,
			Timestamp: now,
		}},
		Status:    SessionActive,
		Limit:     limit,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, nil
}

// TaskDescription is the caller's original request, always message zero.
func (s *Session) TaskDescription() string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[0].Content
}

func (s *Session) Terminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionFailed
}

// Next returns a copy-on-write successor snapshot: version bumped, messages
// copied so appends never alias the parent, everything else carried over.
func (s *Session) Next() *Session {
	next := *s
	next.Version = s.Version + 1
	next.CreatedAt = time.Now().UTC()
	next.Messages = make([]Message, len(s.Messages), len(s.Messages)+1)
	copy(next.Messages, s.Messages)
	return &next
}

func (s *Session) AddMessage(content string, mtype MessageType, metadata map[string]string) {
	s.Messages = append(s.Messages, Message{
		Content:   content,
		Type:      mtype,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	})
}

// NextStage decides what runs next from what the snapshot already holds.
// The skip of the enrichment stage is decided here but persisted explicitly
// by the engine (Outputs.Secondary.Skipped), never inferred afterwards.
func (s *Session) NextStage() (Stage, bool) {
	if s.Terminal() {
		return "", false
	}
	switch {
	case s.Outputs.Resolution == nil:
		return StageResolveRepository, true
	case s.Outputs.Primary == nil:
		return StageFetchContributors, true
	case s.Outputs.Secondary == nil:
		return StageEnrichSocial, true
	case s.Outputs.Merged == nil:
		return StageMerge, true
	default:
		return "", false
	}
}
