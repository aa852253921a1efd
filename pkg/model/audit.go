package model

import "time"

// AuditEventType identifies a lifecycle transition recorded in the journal.
type AuditEventType string

const (
	EventTypeRuntimeInit    AuditEventType = "runtime_init"
	EventTypeRuntimeRelease AuditEventType = "runtime_release"
	EventTypeSessionOpen    AuditEventType = "session_open"
	EventTypeSessionClose   AuditEventType = "session_close"
	EventTypeSync           AuditEventType = "sync"
	EventTypeOutcome        AuditEventType = "outcome"
)

// AuditRecord is a single line in the lifecycle journal (JSONL format).
type AuditRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventType  AuditEventType `json:"event_type"`
	CallID     string         `json:"call_id,omitempty"`
	Generation int64          `json:"generation,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	PrevHash   HashValue      `json:"prev_hash"`
	RecordHash HashValue      `json:"record_hash"`
}
