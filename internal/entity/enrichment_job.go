package entity

import (
	"time"
)

// JobStage identifies the pipeline stage a job resumes at.
type JobStage string

const (
	JobStageExtract JobStage = "extract"
	JobStageGeocode JobStage = "geocode"
	JobStageScore   JobStage = "score"
	JobStagePersist JobStage = "persist"
)

// JobStatus is the job state machine:
//
//	pending -> running -> done | failed | pending_score
//	failed (attempts < max) -> pending, with backoff
//	failed (attempts >= max) -> dead_letter
//	pending_score -> pending (score submitted, resumes at persist)
type JobStatus string

const (
	JobStatusPending      JobStatus = "pending"
	JobStatusRunning      JobStatus = "running"
	JobStatusPendingScore JobStatus = "pending_score"
	JobStatusDone         JobStatus = "done"
	JobStatusFailed       JobStatus = "failed"
	JobStatusDeadLetter   JobStatus = "dead_letter"
)

// EnrichmentJob tracks one story through the pipeline. It is the sole
// mutable coordination record; every stage commits its update before the
// next stage starts.
type EnrichmentJob struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	StoryFingerprint string        `gorm:"unique;not null" json:"story_fingerprint"`
	Stage            JobStage      `gorm:"not null;default:extract" json:"stage"`
	Status           JobStatus     `gorm:"not null;default:pending" json:"status"`
	Attempts         int           `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts      int           `gorm:"not null" json:"max_attempts"`
	DiscardReason    DiscardReason `json:"discard_reason,omitempty"`
	LastError        string        `json:"last_error,omitempty"`
	// NextRetryAt gates the redelivery path: a reclaimed message whose job
	// has not reached this time yet is left pending.
	NextRetryAt *time.Time    `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (EnrichmentJob) TableName() string {
	return "enrichment_jobs"
}

// Terminal reports whether the job can never run again.
func (j *EnrichmentJob) Terminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusDeadLetter
}

// CanTransition validates a state-machine edge. Redelivery of an already
// claimed message makes pending -> running and running -> running both legal.
func (j *EnrichmentJob) CanTransition(to JobStatus) bool {
	switch j.Status {
	case JobStatusPending:
		return to == JobStatusRunning
	case JobStatusRunning:
		return to == JobStatusRunning || to == JobStatusDone ||
			to == JobStatusFailed || to == JobStatusPendingScore
	case JobStatusPendingScore:
		return to == JobStatusPending
	case JobStatusFailed:
		return to == JobStatusPending || to == JobStatusRunning || to == JobStatusDeadLetter
	default:
		return false
	}
}

// BackoffDelay returns the exponential backoff delay before the given
// attempt is retried: base * 2^(attempt-1), capped at max.
func BackoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
