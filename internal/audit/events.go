// Package audit publishes sync lifecycle events to a Kafka-compatible stream
// so operators can reconstruct what the synchronizer did and when.
package audit

import "time"

// Event types emitted by the synchronizer.
const (
	TypeSyncStarted   = "sync.started"
	TypeSyncCompleted = "sync.completed"
	TypeSyncFailed    = "sync.failed"
)

// Event is one structured audit record. Details carry event-specific fields
// (source URL, record counts, error text).
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	RunID     string            `json:"runId"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}
