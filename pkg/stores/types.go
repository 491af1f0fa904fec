package stores

import (
	"time"

	"github.com/camline/camline/pkg/jobs"
)

// EventLevel represents the severity level of a logged event.
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// SessionRecord is the locally persisted state of an editing session.
// It is what makes resuming an order on the next start possible.
type SessionRecord struct {
	OrderID         string    `json:"order_id"`
	MachineProfile  *string   `json:"machine_profile,omitempty"`
	ProfileSelected bool      `json:"profile_selected"`
	ResumedAt       time.Time `json:"resumed_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ArtifactRecord is the last successful artifact per order and stage.
type ArtifactRecord struct {
	OrderID     string    `json:"order_id"`
	Kind        jobs.Kind `json:"kind"`
	JobID       string    `json:"job_id"`
	ArtifactRef string    `json:"artifact_reference"`
	GeneratedAt time.Time `json:"generated_at"`
}

// EventRecord is an append-only local activity log entry.
type EventRecord struct {
	ID        int64      `json:"id"`
	OrderID   string     `json:"order_id"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}
