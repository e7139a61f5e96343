package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnrichmentJob_Terminal(t *testing.T) {
	assert.True(t, (&EnrichmentJob{Status: JobStatusDone}).Terminal())
	assert.True(t, (&EnrichmentJob{Status: JobStatusDeadLetter}).Terminal())
	assert.False(t, (&EnrichmentJob{Status: JobStatusPending}).Terminal())
	assert.False(t, (&EnrichmentJob{Status: JobStatusRunning}).Terminal())
	assert.False(t, (&EnrichmentJob{Status: JobStatusPendingScore}).Terminal())
	assert.False(t, (&EnrichmentJob{Status: JobStatusFailed}).Terminal())
}

func TestEnrichmentJob_CanTransition(t *testing.T) {
	cases := []struct {
		name string
		from JobStatus
		to   JobStatus
		ok   bool
	}{
		{"pending to running", JobStatusPending, JobStatusRunning, true},
		{"pending to done", JobStatusPending, JobStatusDone, false},
		{"running to done", JobStatusRunning, JobStatusDone, true},
		{"running to failed", JobStatusRunning, JobStatusFailed, true},
		{"running to pending_score", JobStatusRunning, JobStatusPendingScore, true},
		{"redelivered running to running", JobStatusRunning, JobStatusRunning, true},
		{"pending_score to pending", JobStatusPendingScore, JobStatusPending, true},
		{"pending_score to done", JobStatusPendingScore, JobStatusDone, false},
		{"failed to pending", JobStatusFailed, JobStatusPending, true},
		{"failed to running", JobStatusFailed, JobStatusRunning, true},
		{"failed to dead_letter", JobStatusFailed, JobStatusDeadLetter, true},
		{"done is terminal", JobStatusDone, JobStatusRunning, false},
		{"dead_letter is terminal", JobStatusDeadLetter, JobStatusPending, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := &EnrichmentJob{Status: tc.from}
			assert.Equal(t, tc.ok, job.CanTransition(tc.to))
		})
	}
}

func TestBackoffDelay_DoublesPerAttempt(t *testing.T) {
	base := 5 * time.Second
	max := 10 * time.Minute

	assert.Equal(t, 5*time.Second, BackoffDelay(base, max, 1))
	assert.Equal(t, 10*time.Second, BackoffDelay(base, max, 2))
	assert.Equal(t, 20*time.Second, BackoffDelay(base, max, 3))
	assert.Equal(t, 40*time.Second, BackoffDelay(base, max, 4))
}

func TestBackoffDelay_CappedAtMax(t *testing.T) {
	assert.Equal(t, 30*time.Second, BackoffDelay(5*time.Second, 30*time.Second, 10))
	assert.Equal(t, 30*time.Second, BackoffDelay(time.Minute, 30*time.Second, 1))
}

func TestBackoffDelay_ClampsInvalidAttempt(t *testing.T) {
	assert.Equal(t, 5*time.Second, BackoffDelay(5*time.Second, time.Minute, 0))
	assert.Equal(t, 5*time.Second, BackoffDelay(5*time.Second, time.Minute, -3))
}
