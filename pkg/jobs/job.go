// Package jobs defines the client-side view of remote CAM jobs and the
// bounded poller that observes them until they reach a terminal state.
package jobs

import (
	"fmt"
	"time"
)

// Kind identifies the artifact a CAM job produces.
type Kind string

const (
	// KindLayout is the cutting layout / DXF generation job.
	KindLayout Kind = "layout"

	// KindGCode is the CNC cutting program generation job.
	KindGCode Kind = "gcode"

	// KindDrilling is the CNC drilling/presetting program generation job.
	KindDrilling Kind = "drilling"
)

// Validate checks if the job kind is valid.
func (k Kind) Validate() error {
	switch k {
	case KindLayout, KindGCode, KindDrilling:
		return nil
	default:
		return fmt.Errorf("invalid job kind: %s", k)
	}
}

// Status represents the remote lifecycle state of a CAM job. The client
// holds only a read-only mirror obtained via polling.
type Status string

const (
	// StatusCreated indicates the job is accepted but not yet picked up.
	StatusCreated Status = "created"

	// StatusProcessing indicates the job is being executed server-side.
	StatusProcessing Status = "processing"

	// StatusCompleted indicates the job finished and produced an artifact.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the job finished with an error.
	StatusFailed Status = "failed"
)

// IsTerminal returns true if the status represents a final state.
// A job never transitions out of a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Validate checks if the job status is valid.
func (s Status) Validate() error {
	switch s {
	case StatusCreated, StatusProcessing, StatusCompleted, StatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid job status: %s", s)
	}
}

// Job is the client-side mirror of a remote CAM job.
type Job struct {
	// ID is the server-assigned job identifier.
	ID string `json:"id"`

	// Kind is the artifact kind this job produces.
	Kind Kind `json:"kind"`

	// Status is the last observed lifecycle state.
	Status Status `json:"status"`

	// ArtifactRef references the generated artifact once completed.
	ArtifactRef string `json:"artifact_reference,omitempty"`

	// Error is the server-provided failure reason, if any.
	Error string `json:"error,omitempty"`
}

// Outcome is the result of observing a job to completion or giving up.
type Outcome string

const (
	// OutcomeCompleted means the job completed and an artifact reference
	// is available.
	OutcomeCompleted Outcome = "completed"

	// OutcomeFailed means the job reported a terminal failure.
	OutcomeFailed Outcome = "failed"

	// OutcomeTimedOut means the attempt budget was exhausted while the
	// job was still in a non-terminal state. Distinct from failure: the
	// job may still be progressing server-side.
	OutcomeTimedOut Outcome = "timed_out"
)

// PollResult is the terminal observation of a polled job.
type PollResult struct {
	// Outcome is the polling outcome.
	Outcome Outcome `json:"outcome"`

	// ArtifactRef is the artifact reference when the outcome is completed.
	ArtifactRef string `json:"artifact_reference,omitempty"`

	// Reason is the server failure reason when the outcome is failed.
	Reason string `json:"reason,omitempty"`

	// Attempts is the number of status queries issued.
	Attempts int `json:"attempts"`
}

// PollOptions bound a polling loop.
type PollOptions struct {
	// Interval is the wait between consecutive status queries.
	Interval time.Duration `json:"interval"`

	// MaxAttempts is the status query budget before giving up.
	MaxAttempts int `json:"max_attempts"`
}

// DefaultPollOptions returns the default polling bounds: two seconds
// between attempts, sixty attempts (two minutes of wall clock).
func DefaultPollOptions() PollOptions {
	return PollOptions{
		Interval:    2 * time.Second,
		MaxAttempts: 60,
	}
}
