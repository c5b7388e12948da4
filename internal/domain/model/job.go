package model

import (
	"time"

	"profile-enrichment/internal/domain"
)

type JobPriority string

const (
	PriorityHigh    JobPriority = "high"
	PriorityDefault JobPriority = "default"
	PriorityLow     JobPriority = "low"
)

// Priorities lists every lane, in scheduling order.
var Priorities = []JobPriority{PriorityHigh, PriorityDefault, PriorityLow}

func ParsePriority(s string) (JobPriority, error) {
	switch JobPriority(s) {
	case PriorityHigh, PriorityDefault, PriorityLow:
		return JobPriority(s), nil
	case "":
		return PriorityDefault, nil
	}
	return "", domain.ErrInvalidArgument
}

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobStarted   JobStatus = "started"
	JobFinished  JobStatus = "finished"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// JobKind is the closed set of tasks a worker knows how to run.
type JobKind string

const (
	JobKindRunWorkflow JobKind = "run-workflow"
)

// Job is one asynchronously scheduled unit of queue work. The broker owns
// its state; a finished or failed job is immutable except for cleanup.
type Job struct {
	ID        string            `json:"id"`
	Kind      JobKind           `json:"kind"`
	Args      map[string]string `json:"args,omitempty"`
	Priority  JobPriority       `json:"priority"`
	Status    JobStatus         `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	StartedAt *time.Time        `json:"started_at,omitempty"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
	Result    string            `json:"result,omitempty"` // present iff finished
	Error     string            `json:"error,omitempty"`  // present iff failed
	Timeout   time.Duration     `json:"timeout"`
	ResultTTL time.Duration     `json:"result_ttl"`
}

func (j *Job) Terminal() bool {
	switch j.Status {
	case JobFinished, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Cancellable holds only before a worker picks the job up.
func (j *Job) Cancellable() bool { return j.Status == JobQueued }
